package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/http/api/admin/permissions"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/security"
)

// Challenge lifetimes for the in-memory MFA stores.
const (
	passkeyChallengeTTL = 5 * time.Minute
	totpEnrollTTL       = 10 * time.Minute
)

// MFAHandler manages TOTP and passkey enrollment for operators.
type MFAHandler struct {
	db *gorm.DB
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db}
}

// ttlMap is a mutex-guarded map whose entries expire at a deadline. MFA
// ceremonies are short-lived, so entries are only reaped on access.
type ttlMap[V any] struct {
	mu      sync.Mutex
	entries map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value    V
	deadline time.Time
}

func newTTLMap[V any]() *ttlMap[V] {
	return &ttlMap[V]{entries: make(map[string]ttlEntry[V])}
}

func (m *ttlMap[V]) put(key string, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = ttlEntry[V]{value: value, deadline: time.Now().Add(ttl)}
}

func (m *ttlMap[V]) get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || time.Now().After(entry.deadline) {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (m *ttlMap[V]) drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Pending MFA state. Registration and TOTP enrollment are keyed by operator
// ID; login ceremonies run before authentication and are keyed by username.
var (
	passkeyEnrollSessions = newTTLMap[webauthn.SessionData]()
	passkeyLoginSessions  = newTTLMap[webauthn.SessionData]()
	totpEnrollSecrets     = newTTLMap[string]()
)

// operatorKey renders an operator ID as a store key.
func operatorKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// passkeyAccount adapts an operator row to the WebAuthn user interfaces. An
// operator holds at most one credential.
type passkeyAccount struct {
	opID  uint64
	name  string
	creds []webauthn.Credential
}

func (a passkeyAccount) WebAuthnID() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, a.opID)
	return buf
}

func (a passkeyAccount) WebAuthnName() string { return a.name }

func (a passkeyAccount) WebAuthnDisplayName() string { return a.name }

func (a passkeyAccount) WebAuthnCredentials() []webauthn.Credential { return a.creds }

// asPasskeyAccount builds the WebAuthn adapter from an operator row.
func asPasskeyAccount(operator models.Operator) passkeyAccount {
	account := passkeyAccount{opID: operator.ID, name: operator.Username}
	if len(operator.PasskeyID) == 0 || len(operator.PasskeyPublicKey) == 0 {
		return account
	}
	cred := webauthn.Credential{
		ID:        operator.PasskeyID,
		PublicKey: operator.PasskeyPublicKey,
	}
	if operator.PasskeySignCount != nil {
		cred.Authenticator.SignCount = *operator.PasskeySignCount
	}
	if operator.PasskeyBackupEligible != nil {
		cred.Flags.BackupEligible = *operator.PasskeyBackupEligible
	}
	if operator.PasskeyBackupState != nil {
		cred.Flags.BackupState = *operator.PasskeyBackupState
	}
	account.creds = append(account.creds, cred)
	return account
}

// hasPasskey reports whether the operator row carries a stored credential.
func hasPasskey(operator models.Operator) bool {
	return len(operator.PasskeyID) > 0 && len(operator.PasskeyPublicKey) > 0
}

// currentOperator loads the authenticated operator with the given columns,
// writing the error response itself when that fails.
func (h *MFAHandler) currentOperator(c *gin.Context, columns ...string) (models.Operator, bool) {
	value, exists := c.Get("operatorID")
	operatorID, isID := value.(uint64)
	if !exists || !isID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
		return models.Operator{}, false
	}

	var operator models.Operator
	q := h.db.WithContext(c.Request.Context())
	if len(columns) > 0 {
		q = q.Select(columns)
	}
	if errFind := q.First(&operator, operatorID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return models.Operator{}, false
	}
	return operator, true
}

// activeOperatorByUsername loads an active operator for the pre-auth login
// flows, writing the error response itself when that fails.
func (h *AuthHandler) activeOperatorByUsername(c *gin.Context, username string) (models.Operator, bool) {
	var operator models.Operator
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", username).
		First(&operator).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return models.Operator{}, false
	}
	if !operator.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "operator account is disabled"})
		return models.Operator{}, false
	}
	return operator, true
}

// Status reports which MFA methods the operator has enrolled.
func (h *MFAHandler) Status(c *gin.Context) {
	operator, ok := h.currentOperator(c, "id", "totp_secret", "passkey_id", "passkey_public_key")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totp_enabled":    strings.TrimSpace(operator.TOTPSecret) != "",
		"passkey_enabled": hasPasskey(operator),
	})
}

// totpQRDataURL renders the enrollment QR code as a data URL, or "" when
// image generation fails; enrollment still works from the plain secret.
func totpQRDataURL(key *otp.Key) string {
	img, errImage := key.Image(220, 220)
	if errImage != nil {
		return ""
	}
	var buf bytes.Buffer
	if errEncode := png.Encode(&buf, img); errEncode != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// PrepareTOTP generates a fresh TOTP secret and holds it until confirmed.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	operator, ok := h.currentOperator(c, "id", "username")
	if !ok {
		return
	}

	key, errGen := totp.Generate(totp.GenerateOpts{
		Issuer:      "gitledger",
		AccountName: operator.Username,
	})
	if errGen != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}

	totpEnrollSecrets.put(operatorKey(operator.ID), key.Secret(), totpEnrollTTL)
	c.JSON(http.StatusOK, gin.H{
		"secret":      key.Secret(),
		"otpauth_url": key.URL(),
		"qr_image":    totpQRDataURL(key),
	})
}

// totpConfirmRequest defines the request body for confirming TOTP.
type totpConfirmRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP checks the first code against the pending secret and enables
// TOTP for the operator.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	operator, ok := h.currentOperator(c, "id")
	if !ok {
		return
	}
	var body totpConfirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	secret, pending := totpEnrollSecrets.get(operatorKey(operator.ID))
	if !pending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp setup expired"})
		return
	}
	if !totp.Validate(code, secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Operator{}).
		Where("id = ?", operator.ID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	totpEnrollSecrets.drop(operatorKey(operator.ID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP clears the operator's TOTP secret.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	operator, ok := h.currentOperator(c, "id")
	if !ok {
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Operator{}).
		Where("id = ?", operator.ID).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	totpEnrollSecrets.drop(operatorKey(operator.ID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisablePasskey removes the operator's stored credential.
func (h *MFAHandler) DisablePasskey(c *gin.Context) {
	operator, ok := h.currentOperator(c, "id")
	if !ok {
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Operator{}).
		Where("id = ?", operator.ID).
		Updates(map[string]any{
			"passkey_id":              nil,
			"passkey_public_key":      nil,
			"passkey_sign_count":      nil,
			"passkey_backup_eligible": nil,
			"passkey_backup_state":    nil,
			"updated_at":              time.Now().UTC(),
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	passkeyEnrollSessions.drop(operatorKey(operator.ID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BeginPasskeyRegistration starts a credential creation ceremony.
func (h *MFAHandler) BeginPasskeyRegistration(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}

	operator, ok := h.currentOperator(c,
		"id", "username", "passkey_id", "passkey_public_key",
		"passkey_sign_count", "passkey_backup_eligible", "passkey_backup_state")
	if !ok {
		return
	}

	account := asPasskeyAccount(operator)
	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		}),
	}
	if len(account.creds) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(account.creds).CredentialDescriptors()))
	}

	creation, session, errBegin := webAuthn.BeginRegistration(account, options...)
	if errBegin != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin passkey registration failed"})
		return
	}

	passkeyEnrollSessions.put(operatorKey(operator.ID), *session, passkeyChallengeTTL)
	c.JSON(http.StatusOK, creation)
}

// FinishPasskeyRegistration verifies the attestation and stores the
// credential on the operator row.
func (h *MFAHandler) FinishPasskeyRegistration(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}

	operator, ok := h.currentOperator(c, "id", "username", "passkey_id", "passkey_public_key", "passkey_sign_count")
	if !ok {
		return
	}

	session, pending := passkeyEnrollSessions.get(operatorKey(operator.ID))
	if !pending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration expired"})
		return
	}

	credential, errFinish := webAuthn.FinishRegistration(asPasskeyAccount(operator), session, c.Request)
	if errFinish != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration failed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Operator{}).
		Where("id = ?", operator.ID).
		Updates(map[string]any{
			"passkey_id":              credential.ID,
			"passkey_public_key":      credential.PublicKey,
			"passkey_sign_count":      uint32(credential.Authenticator.SignCount),
			"passkey_backup_eligible": credential.Flags.BackupEligible,
			"passkey_backup_state":    credential.Flags.BackupState,
			"updated_at":              time.Now().UTC(),
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	passkeyEnrollSessions.drop(operatorKey(operator.ID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// LoginPrepare tells the console which second factor to prompt for before
// the operator submits credentials.
func (h *AuthHandler) LoginPrepare(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	operator, ok := h.activeOperatorByUsername(c, username)
	if !ok {
		return
	}

	totpEnabled := strings.TrimSpace(operator.TOTPSecret) != ""
	passkeyEnabled := hasPasskey(operator)
	c.JSON(http.StatusOK, gin.H{
		"mfa_enabled":     totpEnabled || passkeyEnabled,
		"totp_enabled":    totpEnabled,
		"passkey_enabled": passkeyEnabled,
	})
}

// loginTotpRequest defines the request body for TOTP login.
type loginTotpRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// LoginTOTP authenticates an MFA-enrolled operator with a one-time code.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	var body loginTotpRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	code := strings.TrimSpace(body.Code)
	if username == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and code are required"})
		return
	}

	operator, ok := h.activeOperatorByUsername(c, username)
	if !ok {
		return
	}
	if strings.TrimSpace(operator.TOTPSecret) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "totp not enabled"})
		return
	}
	if !totp.Validate(code, operator.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	h.respondWithOperatorToken(c, operator)
}

// loginPasskeyRequest defines the request body for passkey login options.
type loginPasskeyRequest struct {
	Username string `json:"username"`
}

// LoginPasskeyOptions starts an assertion ceremony for an enrolled operator.
func (h *AuthHandler) LoginPasskeyOptions(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}

	var body loginPasskeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	operator, ok := h.activeOperatorByUsername(c, username)
	if !ok {
		return
	}
	if !hasPasskey(operator) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "passkey not enabled"})
		return
	}

	assertion, session, errBegin := webAuthn.BeginLogin(
		asPasskeyAccount(operator),
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if errBegin != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin passkey login failed"})
		return
	}

	passkeyLoginSessions.put(username, *session, passkeyChallengeTTL)
	c.JSON(http.StatusOK, assertion)
}

// deriveBackupFlags parses the assertion body for the authenticator's backup
// flags. Rows written before those columns existed have no stored flags, and
// FinishLogin rejects a flag mismatch, so the stored credential is patched
// from the live response.
func deriveBackupFlags(rawBody []byte, username string) (eligible, state *bool) {
	parsed, errParse := protocol.ParseCredentialRequestResponseBytes(rawBody)
	if errParse != nil {
		log.WithError(errParse).WithField("username", username).Warn("passkey login parse failed")
		return nil, nil
	}
	e := parsed.Response.AuthenticatorData.Flags.HasBackupEligible()
	s := parsed.Response.AuthenticatorData.Flags.HasBackupState()
	return &e, &s
}

// LoginPasskeyVerify finishes the assertion ceremony and issues a token.
func (h *AuthHandler) LoginPasskeyVerify(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}

	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	operator, ok := h.activeOperatorByUsername(c, username)
	if !ok {
		return
	}
	if !hasPasskey(operator) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "passkey not enabled"})
		return
	}

	session, pending := passkeyLoginSessions.get(username)
	if !pending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login expired"})
		return
	}

	rawBody, errRead := io.ReadAll(c.Request.Body)
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

	account := asPasskeyAccount(operator)
	if operator.PasskeyBackupEligible == nil || operator.PasskeyBackupState == nil {
		if eligible, state := deriveBackupFlags(rawBody, username); eligible != nil && len(account.creds) > 0 {
			account.creds[0].Flags.BackupEligible = *eligible
			account.creds[0].Flags.BackupState = *state
		}
	}

	credential, errFinish := webAuthn.FinishLogin(account, session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("username", username).Warn("passkey login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login failed"})
		return
	}

	_ = h.db.WithContext(c.Request.Context()).Model(&models.Operator{}).
		Where("id = ?", operator.ID).
		Updates(map[string]any{
			"passkey_sign_count":      uint32(credential.Authenticator.SignCount),
			"passkey_backup_eligible": credential.Flags.BackupEligible,
			"passkey_backup_state":    credential.Flags.BackupState,
			"updated_at":              time.Now().UTC(),
		}).Error

	passkeyLoginSessions.drop(username)
	h.respondWithOperatorToken(c, operator)
}

// respondWithOperatorToken issues a JWT and echoes the operator's grants.
func (h *AuthHandler) respondWithOperatorToken(c *gin.Context, operator models.Operator) {
	token, errToken := security.GenerateOperatorToken(h.jwtCfg.Secret, operator.ID, operator.Username, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"operator": gin.H{
			"id":                operator.ID,
			"username":          operator.Username,
			"permissions":       permissions.ParsePermissions(operator.Permissions),
			"is_super_operator": operator.IsSuperOperator,
		},
	})
}
