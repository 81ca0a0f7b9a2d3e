package tasks

const (
	TypeMetadataSubmit = "ledger:metadata_submit"

	QUEUE_NAME = "biosigner"
)
