package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/pkg/logger"
)

const maxQuestionLength = 2000

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(\bunion\b.*\bselect\b|\bdrop\b.*\btable\b|\binsert\b.*\binto\b|\bdelete\b.*\bfrom\b|--|;.*--)`)
	scriptTagPattern    = regexp.MustCompile(`(?i)<\s*script[^>]*>`)
)

type chatRequest struct {
	Question string `json:"question"`
}

// ChatRequest rejects malformed chat payloads before they reach the engine:
// wrong content type, empty or oversized questions, and obvious injection
// attempts. The body is re-parsed by the handler afterwards.
func ChatRequest() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		if !strings.Contains(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Content-Type must be application/json",
			})
		}

		var req chatRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON body",
			})
		}

		question := strings.TrimSpace(req.Question)
		if question == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question is required",
			})
		}
		if len(question) > maxQuestionLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question is too long",
			})
		}

		if sqlInjectionPattern.MatchString(question) || scriptTagPattern.MatchString(question) {
			logger.Warn("Rejected suspicious question",
				zap.String("ip", c.IP()),
				zap.Int("length", len(question)),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question contains disallowed content",
			})
		}

		return c.Next()
	}
}

// JSONBody requires a JSON content type on mutating requests.
func JSONBody() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
			if !strings.Contains(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Content-Type must be application/json",
				})
			}
		}
		return c.Next()
	}
}
