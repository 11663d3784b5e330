package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"attendguard/logger"
	"attendguard/model"
	"attendguard/repository"
	"attendguard/services"
	"attendguard/usecase"
	"attendguard/utils"
)

type MarkAttendanceRequest struct {
	Position PositionReport `json:"position"`
	Device   DeviceSignals  `json:"device"`
	Code     string         `json:"code"`
}

type EligibilityRequest struct {
	Device DeviceSignals `json:"device"`
}

type DistanceRequest struct {
	Position  model.GeoCoordinate       `json:"position"`
	SessionID string                    `json:"session_id"`
	Location  *model.AttendanceLocation `json:"location"`
}

type AttendanceHandler struct {
	svc *usecase.AttendanceService
}

func NewAttendanceHandler(svc *usecase.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{svc: svc}
}

func (h *AttendanceHandler) device(c *gin.Context, signals DeviceSignals, positions services.PositionProvider) usecase.Device {
	env := newRequestEnvironment(c, signals)
	return usecase.Device{
		ID:          c.GetString("device_id"),
		Environment: env,
		Positions:   positions,
		Label:       utils.DeviceLabel(env.UserAgent()),
	}
}

// MarkAttendance handles POST /api/sessions/:id/attendance
func (h *AttendanceHandler) MarkAttendance(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.Unauthorized(c, "Missing or invalid token")
		return
	}
	sessionID := c.Param("id")

	var req MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request format")
		return
	}

	positions := reportedPosition{report: req.Position, at: h.svc.Clock.Now()}
	recorder := h.svc.Recorder(h.device(c, req.Device, positions))

	record, err := recorder.MarkPresentWithCode(c.Request.Context(), sessionID, userID, req.Code)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	utils.Success(c, record)
}

// CheckEligibility handles POST /api/sessions/:id/eligibility
func (h *AttendanceHandler) CheckEligibility(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.Unauthorized(c, "Missing or invalid token")
		return
	}
	sessionID := c.Param("id")

	var req EligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request format")
		return
	}

	if _, err := h.svc.Catalog.GetSession(c.Request.Context(), sessionID); err != nil {
		respondAttendanceError(c, err)
		return
	}

	ledger := h.svc.Ledger(h.device(c, req.Device, nil))
	eligibility, err := ledger.CheckEligibility(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	utils.Success(c, eligibility)
}

// GetDistance handles POST /api/geofence/distance
func (h *AttendanceHandler) GetDistance(c *gin.Context) {
	var req DistanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request format")
		return
	}

	location := req.Location
	if location == nil {
		if req.SessionID == "" {
			utils.BadRequest(c, "Either session_id or location is required")
			return
		}
		loc, err := h.svc.Catalog.GetLocation(c.Request.Context(), req.SessionID)
		if err != nil {
			respondAttendanceError(c, err)
			return
		}
		location = &loc
	}
	if err := location.Validate(); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	utils.Success(c, h.svc.GetDistance(req.Position, *location))
}

// GetHistory handles GET /api/attendance/history
func (h *AttendanceHandler) GetHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.Unauthorized(c, "Missing or invalid token")
		return
	}

	recorder := h.svc.Recorder(usecase.Device{ID: c.GetString("device_id")})
	records, err := recorder.History(c.Request.Context(), userID)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	utils.Success(c, records)
}

// GetStats handles GET /api/attendance/stats
func (h *AttendanceHandler) GetStats(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.Unauthorized(c, "Missing or invalid token")
		return
	}

	recorder := h.svc.Recorder(usecase.Device{ID: c.GetString("device_id")})
	stats, err := recorder.Stats(c.Request.Context(), userID)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	utils.Success(c, stats)
}

// BoundDevice is one binding as shown to callers without the organizer role.
type BoundDevice struct {
	DeviceLabel string    `json:"device_label,omitempty"`
	BoundAt     time.Time `json:"bound_at"`
}

// RestrictionOverview is the redacted restriction summary: counts and device
// labels, no user ids or positions.
type RestrictionOverview struct {
	SessionID         string        `json:"session_id"`
	TotalRestrictions int           `json:"total_restrictions"`
	UniqueDevices     int           `json:"unique_devices"`
	UniqueUsers       int           `json:"unique_users"`
	Devices           []BoundDevice `json:"devices"`
}

func overview(summary model.RestrictionSummary) RestrictionOverview {
	devices := make([]BoundDevice, 0, len(summary.Restrictions))
	for _, r := range summary.Restrictions {
		devices = append(devices, BoundDevice{DeviceLabel: r.DeviceLabel, BoundAt: r.BoundAt})
	}
	return RestrictionOverview{
		SessionID:         summary.SessionID,
		TotalRestrictions: summary.TotalRestrictions,
		UniqueDevices:     summary.UniqueDevices,
		UniqueUsers:       summary.UniqueUsers,
		Devices:           devices,
	}
}

// GetRestrictions handles GET /api/sessions/:id/restrictions. Organizers get
// the full audit summary; everyone else gets the overview.
func (h *AttendanceHandler) GetRestrictions(c *gin.Context) {
	sessionID := c.Param("id")
	ledger := h.svc.Ledger(usecase.Device{ID: c.GetString("device_id")})

	summary, err := ledger.Summary(c.Request.Context(), sessionID)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	if c.GetString("role") == utils.RoleOrganizer {
		utils.Success(c, summary)
		return
	}
	utils.Success(c, overview(summary))
}

// CloseSession handles POST /api/sessions/:id/close (organizers only)
func (h *AttendanceHandler) CloseSession(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	if _, err := h.svc.Catalog.GetSession(ctx, sessionID); err != nil {
		respondAttendanceError(c, err)
		return
	}

	released, err := h.svc.Janitor().EndSession(ctx, sessionID)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	utils.Success(c, gin.H{
		"session_id":     sessionID,
		"released":       released,
		"policy_enabled": h.svc.Config.ExpireOnSessionEnd,
	})
}

func respondAttendanceError(c *gin.Context, err error) {
	var locErr *services.LocationError
	var restricted *usecase.DeviceRestrictedError

	switch {
	case errors.As(err, &locErr):
		if locErr.Reason == services.ReasonOutOfRange {
			utils.UnprocessableEntity(c, locErr.Message(), gin.H{
				"distance": locErr.Distance,
				"radius":   locErr.Radius,
			})
			return
		}
		utils.BadRequest(c, locErr.Message())
	case errors.As(err, &restricted):
		utils.Forbidden(c, restricted.Reason)
	case errors.Is(err, services.ErrInvalidAttendanceCode):
		utils.Forbidden(c, "Invalid attendance code")
	case errors.Is(err, repository.ErrSessionNotFound):
		utils.NotFound(c, "Session not found")
	case errors.Is(err, usecase.ErrLocationInactive):
		utils.Conflict(c, "Attendance is not open for this location")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.TrackError("request", "timeout")
		utils.InternalError(c, "Request was cancelled")
	default:
		logger.Error(c.Request.Context()).Err(err).Str("path", c.FullPath()).Msg("attendance request failed")
		utils.TrackError("attendance", "internal")
		utils.InternalError(c, "Failed to process attendance request")
	}
}
