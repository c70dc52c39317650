package server

import (
	"backend-tripmark/internal/auth"
	"backend-tripmark/internal/config"
	"backend-tripmark/internal/itinerary"
	"backend-tripmark/internal/location"
	"backend-tripmark/internal/logging"
	"backend-tripmark/internal/metrics"
	"backend-tripmark/internal/recording"
	"backend-tripmark/internal/stream"
	"backend-tripmark/internal/viewport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrStoreUnavailable = errors.New("itinerary store unavailable")

// locationStore is what both location providers offer.
type locationStore interface {
	location.Reporter
	recording.LocationProvider
}

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Stream     *stream.Hub
	Itinerary  *itinerary.Service
	Viewport   *viewport.Service
	Recordings *recording.Manager
	Locations  locationStore
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) (*Server, error) {
	log = logging.OrNop(log)

	repo, err := newRepository(cfg, db, redisClient, log)
	if err != nil {
		return nil, err
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      db,
		Redis:   redisClient,
		Logger:  log,
		Metrics: metrics.New(),
		Stream:  stream.NewHub(redisClient, log),
	}

	s.Viewport = viewport.NewService(repo, cfg.ViewportCacheTTL, s.Metrics, log)
	s.Itinerary = itinerary.NewService(repo,
		itinerary.WithInvalidator(s.Viewport),
		itinerary.WithPublisher(s.Stream),
		itinerary.WithMetrics(s.Metrics),
		itinerary.WithLogger(log),
	)

	if redisClient != nil {
		s.Locations = location.NewRedisProvider(redisClient, cfg.LocationTTL)
	} else {
		s.Locations = location.NewStaticProvider()
	}
	s.Recordings = recording.NewManager(s.Itinerary, s.Locations, cfg.SampleInterval,
		recording.WithPublisher(s.Stream),
		recording.WithMetrics(s.Metrics),
		recording.WithLogger(log),
	)

	registerRoutes(s)
	log.Info("server configured", zap.String("store", cfg.StoreBackend))
	return s, nil
}

func newRepository(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) (itinerary.Repository, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		if redisClient == nil {
			return nil, errors.Wrap(ErrStoreUnavailable, "redis backend selected without a redis client")
		}
		return itinerary.NewRedisRepository(redisClient, log), nil
	default:
		if db == nil {
			return nil, errors.Wrap(ErrStoreUnavailable, "postgres backend selected without a pool")
		}
		return itinerary.NewPostgresRepository(db, log), nil
	}
}

// Close stops live recordings and the stream subscription.
func (s *Server) Close() {
	s.Recordings.Close()
	s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "store": s.Cfg.StoreBackend})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(s.Metrics.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	location.RegisterRoutes(s.App.Group("/location"), s.Locations, jwtMiddleware)
	recording.RegisterRoutes(s.App.Group("/recordings"), s.Recordings, jwtMiddleware)
	// /itineraries/visible must win over /itineraries/:id
	viewport.RegisterRoutes(s.App.Group("/itineraries"), s.Viewport)
	itinerary.RegisterRoutes(s.App.Group("/itineraries"), s.Itinerary, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, recording.StreamGuard(s.Recordings, s.Cfg.JWTSecret))
}
