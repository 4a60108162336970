package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

const identityEventSchema = `{
    "type": "object",
    "required": ["type", "data"],
    "properties": {
        "type": {"type": "string"},
        "data": {
            "type": "object",
            "required": ["id"],
            "properties": {
                "id": {"type": "string"}
            }
        }
    }
}`

// WebhookHandler ingests identity-provider lifecycle events.
type WebhookHandler struct {
	users  repositories.UserRepository
	secret string
	schema *jsonschema.Schema
	audit  *telemetry.AuditEmitter
}

type identityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string  `json:"id"`
		Username       *string `json:"username"`
		FirstName      *string `json:"first_name"`
		LastName       *string `json:"last_name"`
		ImageURL       *string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// NewWebhookHandler builds a WebhookHandler. The secret is the provider's
// signing secret; when empty, signature checks are skipped.
func NewWebhookHandler(users repositories.UserRepository, secret string, audit *telemetry.AuditEmitter) *WebhookHandler {
	return &WebhookHandler{
		users:  users,
		secret: secret,
		schema: mustCompileSchema(identityEventSchema),
		audit:  audit,
	}
}

func mustCompileSchema(raw string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("identity-event.json", doc); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("identity-event.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// HandleIdentityEvent verifies, validates and applies one provider event.
// Unrecognized event types are acknowledged and ignored.
func (h *WebhookHandler) HandleIdentityEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}

	if h.secret == "" {
		log.Printf("webhook signing secret not configured, skipping signature verification")
	} else if !verifySignature(h.secret, c.GetHeader("svix-id"), c.GetHeader("svix-timestamp"), c.GetHeader("svix-signature"), body) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.schema.Validate(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event does not match schema"})
		return
	}

	var event identityEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	switch event.Type {
	case "user.created", "user.updated":
		name := displayName(event.Data.FirstName, event.Data.LastName, event.Data.Username)
		email := ""
		if len(event.Data.EmailAddresses) > 0 {
			email = event.Data.EmailAddresses[0].EmailAddress
		}
		if err := h.users.UpsertFromEvent(c.Request.Context(), event.Data.ID, name, email, event.Data.ImageURL); err != nil {
			h.emitAudit(c, "ERROR", "identity event failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not apply event"})
			return
		}
		h.emitAudit(c, "INFO", "Identity user upserted")
	case "user.deleted":
		if err := h.users.DeleteByExternalID(c.Request.Context(), event.Data.ID); err != nil {
			h.emitAudit(c, "ERROR", "identity event failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not apply event"})
			return
		}
		h.emitAudit(c, "INFO", "Identity user deleted")
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// verifySignature checks the svix-style signature header: HMAC-SHA256 over
// "<id>.<timestamp>.<body>" keyed with the base64 secret, compared against
// each space-separated "v1,<base64>" entry.
func verifySignature(secret, msgID, timestamp, signatureHeader string, body []byte) bool {
	if msgID == "" || timestamp == "" || signatureHeader == "" {
		return false
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msgID + "." + timestamp + "."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, entry := range strings.Fields(signatureHeader) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

// displayName derives a user's display name from provider profile fields.
func displayName(first, last, username *string) string {
	full := ""
	if first != nil {
		full = strings.TrimSpace(*first)
	}
	if last != nil {
		if full != "" {
			full += " "
		}
		full += strings.TrimSpace(*last)
	}
	full = strings.TrimSpace(full)
	if full != "" {
		return full
	}
	if username != nil && strings.TrimSpace(*username) != "" {
		return strings.TrimSpace(*username)
	}
	return "Unknown"
}

func (h *WebhookHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), nil)
}
