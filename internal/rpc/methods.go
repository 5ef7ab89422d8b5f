/*
Method catalogue (spec §4.7): every RPC method named in the specification,
delegating to the domain components (Camera Registry, MediaMTX Client,
Recording Manager, Snapshot Manager, File Catalog, Event Bus) rather than
reimplementing their logic here. This mirrors the teacher's methods.go role
-- the thin adaptation layer between wire params and a component call -- but
the component calls themselves are this project's, not the teacher's.
*/
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/catalog"
	"github.com/meridian-video/camera-gateway/internal/eventbus"
	"github.com/meridian-video/camera-gateway/internal/mediamtx"
	"github.com/meridian-video/camera-gateway/internal/recording"
	"github.com/meridian-video/camera-gateway/internal/security"
	"github.com/meridian-video/camera-gateway/internal/snapshot"
)

// ServerInfo is the static identity surfaced by get_server_info/get_status.
type ServerInfo struct {
	Name      string
	Version   string
	StartedAt time.Time
}

// Dependencies wires every domain component the method catalogue delegates
// to. Built once by the composition root (internal/server) and shared by
// every connection's Engine.
type Dependencies struct {
	Registry    *camera.Registry
	URLs        *camera.URLBuilder
	MediaClient *mediamtx.Client
	Recordings  *recording.Manager
	Snapshots   *snapshot.Manager
	Catalog     *catalog.Catalog
	Bus         *eventbus.Bus
	JWT         *security.JWTHandler
	Sessions    *security.SessionManager
	Validator   *security.InputValidator
	Audit       *security.SecurityAuditLogger
	Info        ServerInfo
	Storage     StorageThresholds
}

// StorageThresholds mirrors config.StorageConfig, read by get_storage_info
// to classify directory usage (spec §12).
type StorageThresholds struct {
	RecordingsDir string
	SnapshotsDir  string
	WarnPercent   int
	BlockPercent  int
}

// RegisterAll registers every spec §4.7 method against engine.
func RegisterAll(engine *Engine, d Dependencies) {
	engine.Register("ping", handlePing)
	engine.Register("authenticate", d.handleAuthenticate)
	engine.Register("get_server_info", d.handleGetServerInfo)
	engine.Register("get_status", d.handleGetServerInfo)
	engine.Register("get_system_status", d.handleGetSystemStatus)

	engine.Register("get_camera_list", d.handleGetCameraList)
	engine.Register("get_camera_status", d.handleGetCameraStatus)
	engine.Register("get_camera_capabilities", d.handleGetCameraCapabilities)
	engine.Register("get_stream_url", d.handleGetStreamURL)
	engine.Register("get_streams", d.handleGetStreams)

	engine.Register("take_snapshot", d.handleTakeSnapshot)
	engine.Register("start_recording", d.handleStartRecording)
	engine.Register("stop_recording", d.handleStopRecording)

	engine.Register("list_recordings", d.handleListRecordings)
	engine.Register("list_snapshots", d.handleListSnapshots)
	engine.Register("get_recording_info", d.handleGetFileInfo(catalog.CategoryRecording))
	engine.Register("get_snapshot_info", d.handleGetFileInfo(catalog.CategorySnapshot))
	engine.Register("delete_recording", d.handleDeleteFile)
	engine.Register("delete_snapshot", d.handleDeleteFile)

	engine.Register("get_storage_info", d.handleGetStorageInfo)
	engine.Register("get_metrics", d.handleGetMetrics)

	engine.Register("subscribe_events", d.handleSubscribeEvents)
	engine.Register("unsubscribe_events", d.handleUnsubscribeEvents)
	engine.Register("get_subscription_stats", d.handleGetSubscriptionStats)
}

func handlePing(_ context.Context, _ *security.Session, _ json.RawMessage) (interface{}, *Error) {
	return "pong", nil
}

// authenticateParams resolves the "auth_token" vs "token" naming open
// question (spec §9): auth_token is the one canonical field name; a body
// carrying the legacy "token" name is rejected rather than silently
// honored, so callers never get a mix of both conventions working.
type authenticateParams struct {
	AuthToken string          `json:"auth_token"`
	Token     json.RawMessage `json:"token"`
}

func (d Dependencies) handleAuthenticate(_ context.Context, sess *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p authenticateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, newError(CodeInvalidParams, "invalid params")
	}
	if len(p.Token) > 0 {
		return nil, newError(CodeInvalidParams, `unsupported field "token": use "auth_token"`)
	}
	if p.AuthToken == "" {
		return nil, newError(CodeInvalidParams, "auth_token is required")
	}
	claims, err := d.JWT.ValidateToken(p.AuthToken)
	if err != nil {
		if d.Audit != nil {
			d.Audit.LogAuthFailure(sess.SessionID, "", 0, err.Error())
		}
		return nil, newErrorf(CodeAuthFailed, "token validation failed: %v", err)
	}
	if err := d.Sessions.Authenticate(sess.SessionID, claims); err != nil {
		return nil, newErrorf(CodeAuthFailed, "%v", err)
	}
	sess.Claims = claims
	if d.Audit != nil {
		d.Audit.LogAuthSuccess(sess.SessionID, claims.Subject, "", "")
	}
	var role string
	if len(claims.Roles) > 0 {
		role = claims.Roles[0]
	}
	return map[string]interface{}{
		"authenticated": true,
		"subject":       claims.Subject,
		"role":          role,
		"scopes":        claims.Scopes,
	}, nil
}

func (d Dependencies) handleGetServerInfo(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
	return map[string]interface{}{
		"name":       d.Info.Name,
		"version":    d.Info.Version,
		"started_at": d.Info.StartedAt.UTC(),
		"uptime_s":   time.Since(d.Info.StartedAt).Seconds(),
	}, nil
}

func (d Dependencies) handleGetSystemStatus(ctx context.Context, _ *security.Session, _ json.RawMessage) (interface{}, *Error) {
	list := d.Registry.List()
	health, err := d.MediaClient.Health(ctx)
	reachable := err == nil && health.Reachable
	return map[string]interface{}{
		"cameras_total":     list.Total,
		"cameras_connected": list.ConnectedCount,
		"mediamtx_reachable": reachable,
		"circuit_state":     d.MediaClient.CircuitState(),
	}, nil
}

func (d Dependencies) handleGetCameraList(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
	list := d.Registry.List()
	return map[string]interface{}{
		"cameras": list.Cameras,
		"total":   list.Total,
		"connected": list.ConnectedCount,
	}, nil
}

type cameraIDParams struct {
	CameraID string `json:"camera_id"`
	Device   string `json:"device"`
}

// resolveCameraID accepts either an explicit camera_id or a device path
// (e.g. "/dev/video0", as the start/stop recording scenarios send),
// mapping a device path through the identifier bijection so both forms
// name the same camera.
func resolveCameraID(cameraID, device string) (string, *Error) {
	if cameraID != "" {
		return cameraID, nil
	}
	if device != "" {
		id, err := camera.IdentifierFromDevicePath(device)
		if err != nil {
			return "", newErrorf(CodeInvalidParams, "invalid device: %v", err)
		}
		return id, nil
	}
	return "", newError(CodeInvalidParams, "camera_id or device is required")
}

func (d Dependencies) cameraOrError(raw json.RawMessage) (*camera.Camera, string, *Error) {
	var p cameraIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, "", newError(CodeInvalidParams, "invalid params")
	}
	id, rpcErr := resolveCameraID(p.CameraID, p.Device)
	if rpcErr != nil {
		return nil, "", rpcErr
	}
	if d.Validator != nil {
		if result := d.Validator.ValidateCameraID(id); !result.Valid {
			return nil, id, newErrorf(CodeInvalidParams, "invalid camera_id: %s", result.GetErrorMessages()[0])
		}
	}
	cam, err := d.Registry.Get(id)
	if err != nil {
		return nil, id, newErrorf(CodeNotFound, "unknown camera: %s", id)
	}
	return cam, id, nil
}

func (d Dependencies) handleGetCameraStatus(_ context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	cam, _, rpcErr := d.cameraOrError(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return cam, nil
}

func (d Dependencies) handleGetCameraCapabilities(_ context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	cam, _, rpcErr := d.cameraOrError(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return cam.Capabilities, nil
}

func (d Dependencies) handleGetStreamURL(_ context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	_, id, rpcErr := d.cameraOrError(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return d.URLs.Build(id), nil
}

func (d Dependencies) handleGetStreams(ctx context.Context, _ *security.Session, _ json.RawMessage) (interface{}, *Error) {
	paths, err := d.MediaClient.ListPaths(ctx)
	if err != nil {
		return nil, newErrorf(CodeDependencyFailed, "mediamtx list paths failed: %v", err)
	}
	return paths, nil
}

type takeSnapshotParams struct {
	CameraID string `json:"camera_id"`
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Quality  *int   `json:"quality"`
}

func (d Dependencies) handleTakeSnapshot(ctx context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p takeSnapshotParams
	if err := json.Unmarshal(raw, &p); err != nil || p.CameraID == "" {
		return nil, newError(CodeInvalidParams, "camera_id is required")
	}
	quality := 0
	if p.Quality != nil {
		// spec §8 boundary: quality outside 1..100 (including 0) is
		// rejected outright, not coerced to a default.
		if *p.Quality < 1 || *p.Quality > 100 {
			return nil, newError(CodeInvalidParams, "quality must be between 1 and 100")
		}
		quality = *p.Quality
	}
	result, err := d.Snapshots.Take(ctx, p.CameraID, snapshot.Options{Filename: p.Filename, Format: p.Format, Quality: quality})
	if err != nil {
		return nil, classifySnapshotErr(err)
	}
	return result, nil
}

func classifySnapshotErr(err error) *Error {
	if _, ok := err.(*snapshot.ErrCameraNotReady); ok {
		return newErrorf(CodeInvalidState, "%v", err)
	}
	return newErrorf(CodeDependencyFailed, "%v", err)
}

type startRecordingParams struct {
	CameraID string `json:"camera_id"`
	Device   string `json:"device"`
	Duration int64  `json:"duration"`
	Format   string `json:"format"`
}

func (d Dependencies) handleStartRecording(ctx context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p startRecordingParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, newError(CodeInvalidParams, "invalid params")
	}
	id, rpcErr := resolveCameraID(p.CameraID, p.Device)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if p.Duration < 0 {
		return nil, newError(CodeInvalidParams, "duration must not be negative")
	}
	opts := recording.StartOptions{Format: p.Format}
	if p.Duration > 0 {
		opts.Duration = time.Duration(p.Duration) * time.Second
	}
	session, err := d.Recordings.Start(ctx, id, opts)
	if err != nil {
		return nil, d.classifyRecordingErr(err)
	}
	return session, nil
}

type stopRecordingParams struct {
	CameraID string `json:"camera_id"`
	Device   string `json:"device"`
}

func (d Dependencies) handleStopRecording(ctx context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p stopRecordingParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, newError(CodeInvalidParams, "invalid params")
	}
	id, rpcErr := resolveCameraID(p.CameraID, p.Device)
	if rpcErr != nil {
		return nil, rpcErr
	}
	session, err := d.Recordings.Stop(ctx, id, "client_request")
	if err != nil {
		return nil, d.classifyRecordingErr(err)
	}
	return session, nil
}

// classifyRecordingErr maps a recording.Manager error onto the wire taxonomy
// (spec §7 groups ALREADY_RECORDING/NO_ACTIVE_SESSION/CAMERA_NOT_READY under
// INVALID_STATE) and attaches the reason, and for ALREADY_RECORDING the
// current session, as the error's data (spec §7: "optionally data, e.g. the
// current session for ALREADY_RECORDING").
func (d Dependencies) classifyRecordingErr(err error) *Error {
	switch e := err.(type) {
	case *recording.ErrAlreadyRecording:
		data := map[string]interface{}{"reason": "ALREADY_RECORDING"}
		if session, getErr := d.Recordings.Get(e.CameraID); getErr == nil {
			data["session"] = session
		}
		return &Error{Code: CodeInvalidState, Message: err.Error(), Data: data}
	case *recording.ErrCameraNotReady:
		return &Error{Code: CodeInvalidState, Message: err.Error(), Data: map[string]interface{}{"reason": "CAMERA_NOT_READY"}}
	case *recording.ErrNoActiveSession:
		return &Error{Code: CodeInvalidState, Message: err.Error(), Data: map[string]interface{}{"reason": "NO_ACTIVE_SESSION"}}
	default:
		return newErrorf(CodeDependencyFailed, "%v", err)
	}
}

type listParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (d Dependencies) handleListRecordings(_ context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p listParams
	_ = json.Unmarshal(raw, &p)
	result, err := d.Catalog.ListRecordings(p.Limit, p.Offset)
	if err != nil {
		return nil, newErrorf(CodeInternal, "%v", err)
	}
	return result, nil
}

func (d Dependencies) handleListSnapshots(_ context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p listParams
	_ = json.Unmarshal(raw, &p)
	result, err := d.Catalog.ListSnapshots(p.Limit, p.Offset)
	if err != nil {
		return nil, newErrorf(CodeInternal, "%v", err)
	}
	return result, nil
}

type filenameParams struct {
	Filename string `json:"filename"`
}

func (d Dependencies) handleGetFileInfo(_ catalog.Category) HandlerFunc {
	return func(_ context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
		var p filenameParams
		if err := json.Unmarshal(raw, &p); err != nil || p.Filename == "" {
			return nil, newError(CodeInvalidParams, "filename is required")
		}
		info, err := d.Catalog.GetInfo(p.Filename)
		if err != nil {
			return nil, classifyCatalogErr(err)
		}
		return info, nil
	}
}

func (d Dependencies) handleDeleteFile(_ context.Context, _ *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p filenameParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Filename == "" {
		return nil, newError(CodeInvalidParams, "filename is required")
	}
	if err := d.Catalog.Delete(p.Filename); err != nil {
		return nil, classifyCatalogErr(err)
	}
	return map[string]interface{}{"deleted": p.Filename}, nil
}

func classifyCatalogErr(err error) *Error {
	switch err.(type) {
	case *catalog.ErrInvalidParam:
		return newErrorf(CodeInvalidParams, "%v", err)
	case *catalog.ErrNotFound:
		return newErrorf(CodeNotFound, "%v", err)
	default:
		return newErrorf(CodeInternal, "%v", err)
	}
}

func (d Dependencies) handleGetStorageInfo(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
	recPct, _ := catalog.DiskUsage(d.Storage.RecordingsDir)
	snapPct, _ := catalog.DiskUsage(d.Storage.SnapshotsDir)
	return map[string]interface{}{
		"recordings_dir":    d.Storage.RecordingsDir,
		"snapshots_dir":     d.Storage.SnapshotsDir,
		"recordings_used_pct": recPct,
		"snapshots_used_pct":  snapPct,
		"warn_percent":      d.Storage.WarnPercent,
		"block_percent":     d.Storage.BlockPercent,
		"status":            classifyStorage(maxFloat(recPct, snapPct), d.Storage),
	}, nil
}

func classifyStorage(usedPct float64, t StorageThresholds) string {
	switch {
	case usedPct >= float64(t.BlockPercent):
		return "BLOCKED"
	case usedPct >= float64(t.WarnPercent):
		return "WARN"
	default:
		return "OK"
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (d Dependencies) handleGetMetrics(ctx context.Context, sess *security.Session, raw json.RawMessage) (interface{}, *Error) {
	cameras := d.Registry.List()
	busStats := d.Bus.Stats()
	return map[string]interface{}{
		"cameras_total":     cameras.Total,
		"cameras_connected": cameras.ConnectedCount,
		"active_recordings": len(d.Recordings.ListActive()),
		"sessions_open":     d.Sessions.Count(),
		"event_subscribers": busStats.TotalSubscribers,
		"events_dropped":    busStats.DroppedByClient,
	}, nil
}

type subscribeEventsParams struct {
	Topics []string `json:"topics"`
}

func (d Dependencies) handleSubscribeEvents(_ context.Context, sess *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p subscribeEventsParams
	_ = json.Unmarshal(raw, &p)
	d.Bus.Subscribe(sess.SessionID, p.Topics)
	for _, t := range p.Topics {
		sess.Subscribe(t)
	}
	return map[string]interface{}{"subscribed": sess.Subscriptions()}, nil
}

func (d Dependencies) handleUnsubscribeEvents(_ context.Context, sess *security.Session, raw json.RawMessage) (interface{}, *Error) {
	var p subscribeEventsParams
	_ = json.Unmarshal(raw, &p)
	d.Bus.Unsubscribe(sess.SessionID, p.Topics)
	for _, t := range p.Topics {
		sess.Unsubscribe(t)
	}
	return map[string]interface{}{"subscribed": sess.Subscriptions()}, nil
}

func (d Dependencies) handleGetSubscriptionStats(_ context.Context, sess *security.Session, _ json.RawMessage) (interface{}, *Error) {
	stats := d.Bus.Stats()
	return map[string]interface{}{
		"topics":            sess.Subscriptions(),
		"total_subscribers": stats.TotalSubscribers,
		"topic_counts":      stats.TopicCounts,
		"dropped":           stats.DroppedByClient[sess.SessionID],
	}, nil
}
