package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"ChatWallet/internal/config"
	"ChatWallet/internal/inbox"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/pkg/logger"
)

// SecretTokenHeader 是 Telegram 回调时携带的校验头。
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	defaultPublishTimeout  = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Server 接收 Telegram Webhook 并把消息投递到收件队列。
type Server struct {
	cfg             config.ServerConfig
	producer        inbox.Producer
	app             *fiber.App
	logger          *slog.Logger
	now             func() time.Time
	publishTimeout  time.Duration
	shutdownTimeout time.Duration
}

// Option 调整 Server 行为。
type Option func(*Server)

// WithLogger 指定日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublishTimeout 设置单次入队的超时时间。
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithClock 替换时间来源，便于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer 构建 HTTP 服务并注册路由。
func NewServer(cfg config.ServerConfig, producer inbox.Producer, opts ...Option) *Server {
	s := &Server{
		cfg:             cfg,
		producer:        producer,
		logger:          logger.Named("api"),
		now:             time.Now,
		publishTimeout:  defaultPublishTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}
	if cfg.ShutdownSeconds > 0 {
		s.shutdownTimeout = time.Duration(cfg.ShutdownSeconds) * time.Second
	}
	if s.cfg.WebhookPath == "" {
		s.cfg.WebhookPath = "/webhook"
	}
	if s.cfg.MetricsPath == "" {
		s.cfg.MetricsPath = "/metrics"
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "chatwalletd",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(s.observe)

	app.Post(s.cfg.WebhookPath, s.handleWebhook)
	app.Get("/healthz", s.handleHealth)
	app.Get(s.cfg.MetricsPath, adaptor.HTTPHandler(metrics.Handler()))

	s.app = app
	return s
}

// App 返回底层 fiber 应用。
func (s *Server) App() *fiber.App {
	return s.app
}

// Start 开始监听，直到 ctx 结束后优雅关闭。
func (s *Server) Start(ctx context.Context) error {
	if s.producer == nil {
		return errors.New("api: 未配置收件队列")
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook 服务启动", slog.String("address", s.cfg.Address), slog.String("path", s.cfg.WebhookPath))
		errCh <- s.app.Listen(s.cfg.Address)
	}()

	select {
	case <-ctx.Done():
		shutdownErr := s.app.ShutdownWithTimeout(s.shutdownTimeout)
		if err := <-errCh; err != nil && shutdownErr == nil {
			shutdownErr = err
		}
		return shutdownErr
	case err := <-errCh:
		return err
	}
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

func (s *Server) handleWebhook(c *fiber.Ctx) error {
	if !s.authorized(c.Get(SecretTokenHeader)) {
		s.logger.Warn("Webhook 校验失败", slog.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "unauthorized"})
	}

	var update telegramUpdate
	if err := c.BodyParser(&update); err != nil {
		// 无法解析或类型不符的更新同样应答 200，Telegram 不再重投。
		s.logger.Warn("无法解析 Webhook 请求体", slog.Any("error", err))
		return c.JSON(fiber.Map{"ok": true})
	}
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		// 非文本或纯空白消息只应答，不入队也不回复。
		return c.JSON(fiber.Map{"ok": true})
	}

	msg := inbox.Update{
		UpdateID:   update.UpdateID,
		ChatID:     strconv.FormatInt(update.Message.Chat.ID, 10),
		Text:       update.Message.Text,
		ReceivedAt: s.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), s.publishTimeout)
	defer cancel()
	if err := s.producer.Publish(ctx, msg); err != nil {
		s.logger.Error("更新入队失败",
			slog.Int64("update_id", msg.UpdateID),
			slog.String("chat_id", msg.ChatID),
			slog.Any("error", err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to enqueue update"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) authorized(got string) bool {
	if s.cfg.SecretToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.SecretToken)) == 1
}

func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	route := c.Route().Path
	if status == fiber.StatusNotFound {
		route = "unmatched"
	}
	metrics.ObserveHTTPRequest(route, c.Method(), status, time.Since(start))
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code, message := fiber.StatusInternalServerError, "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, message = fe.Code, fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("请求处理失败", slog.String("path", c.Path()), slog.Any("error", err))
	}
	return c.Status(code).JSON(fiber.Map{"ok": false, "error": message})
}
