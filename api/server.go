package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"

	"github.com/biosig/biosigner/config"
	"github.com/biosig/biosigner/internal/aggregate"
	"github.com/biosig/biosigner/internal/did"
	"github.com/biosig/biosigner/internal/fuzzy"
	"github.com/biosig/biosigner/internal/minutiae"
	"github.com/biosig/biosigner/internal/threshold"
	"github.com/biosig/biosigner/internal/types"
	"github.com/biosig/biosigner/service"
	"github.com/biosig/biosigner/storage"
)

type Server struct {
	cfg      config.Config
	redis    *storage.RedisStorage
	sdClient *statsd.Client
	logger   *logrus.Logger
	db       storage.DatabaseStorage
	identity *service.Identity
}

// NewServer returns a new server.
func NewServer(cfg config.Config,
	redis *storage.RedisStorage,
	sdClient *statsd.Client,
	db storage.DatabaseStorage,
	identity *service.Identity) *Server {
	return &Server{
		cfg:      cfg,
		redis:    redis,
		sdClient: sdClient,
		logger:   logrus.WithField("service", "api").Logger,
		db:       db,
		identity: identity,
	}
}

func (s *Server) StartServer() error {
	e := echo.New()
	e.Logger.SetLevel(log.DEBUG)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M")) // set maximum allowed size for a request body to 2M
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORS())
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 5, Burst: 30, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.GET("/ping", s.Ping)

	grp := e.Group("/identity")
	grp.POST("/enroll", s.Enroll)
	grp.POST("/verify", s.Verify)
	grp.POST("/rotate", s.Rotate)
	grp.POST("/revoke", s.Revoke)
	grp.GET("/:did", s.GetIdentity)

	didGroup := e.Group("/did")
	didGroup.POST("/derive", s.DeriveDid)
	didGroup.GET("/:did/hash", s.ExtractDidHash)

	return e.Start(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

func (s *Server) statsdMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		duration := time.Since(start).Milliseconds()

		// Send metrics to statsd
		_ = s.sdClient.Incr("http.requests", []string{"path:" + c.Path()}, 1)
		_ = s.sdClient.Timing("http.response_time", time.Duration(duration)*time.Millisecond, []string{"path:" + c.Path()}, 1)
		_ = s.sdClient.Incr("http.status."+fmt.Sprint(c.Response().Status), []string{"path:" + c.Path(), "method:" + c.Request().Method}, 1)

		return err
	}
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "Biosigner is running")
}

// statusFor maps core error kinds to HTTP statuses: malformed input is 400,
// "not the enrolled finger" is 401 so callers can prompt for recapture, and
// invariant violations are 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fuzzy.ErrHelperMismatch),
		errors.Is(err, fuzzy.ErrDecodingFailure),
		errors.Is(err, aggregate.ErrQualityThreshold):
		return http.StatusUnauthorized
	case errors.Is(err, aggregate.ErrDuplicateFinger),
		errors.Is(err, aggregate.ErrInsufficientFingers),
		errors.Is(err, threshold.ErrDuplicateShareIndex),
		errors.Is(err, service.ErrDuplicateEnrollment):
		return http.StatusConflict
	case errors.Is(err, service.ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, minutiae.ErrInsufficientFeatures),
		errors.Is(err, minutiae.ErrInvalidTemplate),
		errors.Is(err, aggregate.ErrEmptyInput),
		errors.Is(err, aggregate.ErrInvalidKeyLength),
		errors.Is(err, threshold.ErrInvalidThreshold),
		errors.Is(err, threshold.ErrMissingShare),
		errors.Is(err, did.ErrEmptyCommitment),
		errors.Is(err, did.ErrInvalidNetwork),
		errors.Is(err, did.ErrMalformed),
		errors.Is(err, service.ErrIdentityRevoked),
		errors.Is(err, service.ErrRotationUnsupported):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// Enroll creates a new biometric identity from a full finger set.
func (s *Server) Enroll(c echo.Context) error {
	var req types.EnrollmentRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := s.sdClient.Count("identity.enroll", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
	resp, err := s.identity.Enroll(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Verify re-presents some or all enrolled fingers against an existing DID.
func (s *Server) Verify(c echo.Context) error {
	var req types.VerificationRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := s.sdClient.Count("identity.verify", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
	resp, err := s.identity.Verify(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Rotate swaps one enrolled finger for a new capture.
func (s *Server) Rotate(c echo.Context) error {
	var req types.RotateRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	resp, err := s.identity.Rotate(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Revoke removes one enrolled finger and re-derives the identity.
func (s *Server) Revoke(c echo.Context) error {
	var req types.RevokeRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	resp, err := s.identity.Revoke(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetIdentity returns the registry record for a DID, cache first.
func (s *Server) GetIdentity(c echo.Context) error {
	identifier := c.Param("did")
	if identifier == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "did is required"})
	}
	if s.redis != nil {
		if record, err := s.redis.GetIdentityCacheItem(c.Request().Context(), identifier); err == nil {
			return c.JSON(http.StatusOK, record)
		}
	}
	record, err := s.db.FindIdentityByDid(c.Request().Context(), identifier)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "identity not found"})
	}
	return c.JSON(http.StatusOK, record)
}

// DeriveDid derives an identifier from a hex commitment without touching
// any enrollment state. Useful for offline verification tooling.
func (s *Server) DeriveDid(c echo.Context) error {
	var req struct {
		Commitment string `json:"commitment"`
		Network    string `json:"network"`
	}
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	commitment, err := hex.DecodeString(req.Commitment)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "commitment must be hex"})
	}
	identifier, err := did.Generate(commitment, req.Network)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"did": identifier})
}

// ExtractDidHash parses a DID and returns its decoded hash.
func (s *Server) ExtractDidHash(c echo.Context) error {
	identifier := c.Param("did")
	hash, err := did.ExtractHash(identifier)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id_hash": hex.EncodeToString(hash)})
}
