// Package httpapi exposes the admin surface: direct gateway provisioning
// and the trunk lifecycle. Handlers stay thin; reconciliation lives in
// internal/trunks.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"trunkctl/internal/dialstring"
	"trunkctl/internal/events"
	"trunkctl/internal/gateway"
	"trunkctl/internal/trunks"
	"trunkctl/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventPublisher pushes live-call updates toward in-flight call
// executors.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.CallUpdateEvent) error
}

type Handlers struct {
	Trunks    trunks.Repository
	Lifecycle *trunks.Orchestrator
	Gateways  trunks.GatewayProvisioner
	Events    EventPublisher
	Log       *slog.Logger
}

type gatewayRequest struct {
	Name          string `json:"name" binding:"required"`
	Username      string `json:"username" binding:"required"`
	Password      string `json:"password" binding:"required"`
	Realm         string `json:"realm" binding:"required"`
	Proxy         string `json:"proxy" binding:"required"`
	OutboundProxy string `json:"outbound_proxy"`
	AuthUsername  string `json:"auth_username"`
}

// CreateGateway provisions a switch gateway directly, bypassing trunk
// bookkeeping. Used by the call service when it owns the trunk record.
func (h *Handlers) CreateGateway(c *gin.Context) {
	var req gatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Gateways.CreateGateway(c.Request.Context(), gateway.Config{
		Name:          req.Name,
		Username:      req.Username,
		Password:      req.Password,
		Realm:         req.Realm,
		Proxy:         req.Proxy,
		OutboundProxy: req.OutboundProxy,
		AuthUsername:  req.AuthUsername,
	})
	if err != nil {
		logger.FromGin(c).Error("gateway create failed", "gateway", req.Name, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "gateway create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name, "status": "created"})
}

func (h *Handlers) DeleteGateway(c *gin.Context) {
	name := c.Param("name")
	if err := h.Gateways.DeleteGateway(c.Request.Context(), name); err != nil {
		logger.FromGin(c).Error("gateway delete failed", "gateway", name, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "gateway delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type trunkRequest struct {
	ID                 string  `json:"id"`
	AuthenticationMode string  `json:"authentication_mode"`
	Username           *string `json:"username"`
	Password           *string `json:"password"`
	AuthUser           *string `json:"auth_user"`
	OutboundHost       *string `json:"outbound_host"`
	OutboundProxy      *string `json:"outbound_proxy"`
	DialStringPrefix   *string `json:"dial_string_prefix"`
	PlusPrefix         *bool   `json:"plus_prefix"`
	NationalDialing    *bool   `json:"national_dialing"`
	SIPProfile         *string `json:"sip_profile"`
}

func (r trunkRequest) apply(t *trunks.Trunk) {
	if r.AuthenticationMode != "" {
		t.AuthenticationMode = dialstring.AuthMode(r.AuthenticationMode)
	}
	if r.Username != nil {
		t.Username = *r.Username
	}
	if r.Password != nil {
		t.Password = *r.Password
	}
	if r.AuthUser != nil {
		t.AuthUser = *r.AuthUser
	}
	if r.OutboundHost != nil {
		t.OutboundHost = *r.OutboundHost
	}
	if r.OutboundProxy != nil {
		t.OutboundProxy = *r.OutboundProxy
	}
	if r.DialStringPrefix != nil {
		t.DialStringPrefix = *r.DialStringPrefix
	}
	if r.PlusPrefix != nil {
		t.PlusPrefix = *r.PlusPrefix
	}
	if r.NationalDialing != nil {
		t.NationalDialing = *r.NationalDialing
	}
	if r.SIPProfile != nil {
		t.SIPProfile = *r.SIPProfile
	}
}

// CreateTrunk stores a trunk and reconciles its switch-side resources.
func (h *Handlers) CreateTrunk(c *gin.Context) {
	var req trunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := trunks.Trunk{ID: strings.TrimSpace(req.ID)}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	req.apply(&t)
	t.NormalizeCredentials()
	if err := t.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if err := h.Trunks.Create(c.Request.Context(), t); err != nil {
		if errors.Is(err, trunks.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "trunk already exists"})
			return
		}
		logger.FromGin(c).Error("trunk create failed", "trunk_id", t.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk create failed"})
		return
	}

	if err := h.Lifecycle.TrunkCreated(c.Request.Context(), t); err != nil {
		logger.FromGin(c).Error("trunk provisioning failed", "trunk_id", t.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk provisioning failed"})
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTrunk applies a partial update and reconciles the diff.
func (h *Handlers) UpdateTrunk(c *gin.Context) {
	var req trunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	current, err := h.Trunks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, trunks.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trunk not found"})
			return
		}
		logger.FromGin(c).Error("trunk lookup failed", "trunk_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk lookup failed"})
		return
	}

	req.apply(&current)
	current.NormalizeCredentials()
	if err := current.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	previous, err := h.Trunks.Update(c.Request.Context(), current)
	if err != nil {
		logger.FromGin(c).Error("trunk update failed", "trunk_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk update failed"})
		return
	}

	if err := h.Lifecycle.TrunkUpdated(c.Request.Context(), previous, current); err != nil {
		logger.FromGin(c).Error("trunk reconciliation failed", "trunk_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, current)
}

// DeleteTrunk removes the trunk and tears down its resources.
func (h *Handlers) DeleteTrunk(c *gin.Context) {
	id := c.Param("id")
	t, err := h.Trunks.Delete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, trunks.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trunk not found"})
			return
		}
		logger.FromGin(c).Error("trunk delete failed", "trunk_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk delete failed"})
		return
	}

	if err := h.Lifecycle.TrunkDeleted(c.Request.Context(), t); err != nil {
		logger.FromGin(c).Error("trunk teardown failed", "trunk_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk teardown failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GetTrunk(c *gin.Context) {
	id := c.Param("id")
	t, err := h.Trunks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, trunks.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trunk not found"})
			return
		}
		logger.FromGin(c).Error("trunk lookup failed", "trunk_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk lookup failed"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handlers) ListTrunks(c *gin.Context) {
	list, err := h.Trunks.List(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("trunk list failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trunk list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sip_trunks": list})
}

type redirectRequest struct {
	URL    string `json:"url" binding:"required"`
	Method string `json:"method"`
}

// RedirectCall publishes a live-call update. A conference executor
// subscribed to the call's channel picks it up and breaks the bridge;
// publishing to a call nobody listens on is harmless.
func (h *Handlers) RedirectCall(c *gin.Context) {
	var req redirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := events.CallUpdateEvent{
		CallID: c.Param("id"),
		URL:    req.URL,
		Method: req.Method,
	}
	if err := h.Events.Publish(c.Request.Context(), ev); err != nil {
		logger.FromGin(c).Error("call redirect publish failed", "call_id", ev.CallID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "call redirect failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"call_id": ev.CallID, "status": "queued"})
}
