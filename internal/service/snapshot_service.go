package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

type snapshotRenderer interface {
	Render(ctx context.Context, format ExportFormat) (*ExportFile, error)
}

type snapshotStorage interface {
	Save(name string, data []byte) error
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration, now time.Time) ([]string, error)
}

type snapshotSigner interface {
	Generate(name string) (string, time.Time, error)
	Parse(token string) (string, error)
}

// SnapshotConfig controls where download links point and how long files live.
type SnapshotConfig struct {
	APIPrefix string
	Retention time.Duration
}

// SnapshotDownload is an opened snapshot ready to be streamed.
type SnapshotDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
}

// SnapshotService stores rendered ledger exports and hands out signed links to them.
type SnapshotService struct {
	exporter snapshotRenderer
	storage  snapshotStorage
	signer   snapshotSigner
	audit    auditLogger
	cfg      SnapshotConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewSnapshotService constructs a SnapshotService.
func NewSnapshotService(exporter snapshotRenderer, storage snapshotStorage, signer snapshotSigner, audit auditLogger, cfg SnapshotConfig, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &SnapshotService{
		exporter: exporter,
		storage:  storage,
		signer:   signer,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Create renders a snapshot, stores it and returns a download link.
// Snapshots past their retention are pruned first.
func (s *SnapshotService) Create(ctx context.Context, actor *models.JWTClaims, format ExportFormat) (*dto.SnapshotLink, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	s.prune()

	file, err := s.exporter.Render(ctx, format)
	if err != nil {
		return nil, err
	}
	name := strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "_" + file.Filename
	if err := s.storage.Save(name, file.Payload); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to store snapshot")
	}
	token, expiresAt, err := s.signer.Generate(name)
	if err != nil {
		if derr := s.storage.Delete(name); derr != nil {
			s.logger.Warn("failed to discard unsigned snapshot", zap.String("name", name), zap.Error(derr))
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to sign snapshot link")
	}

	link := &dto.SnapshotLink{
		Filename:    file.Filename,
		DownloadURL: strings.TrimRight(s.cfg.APIPrefix, "/") + "/ledger/snapshots/" + token,
		ExpiresAt:   expiresAt,
		Rows:        file.Rows,
	}
	s.logger.Info("ledger snapshot stored", zap.String("name", name), zap.Int("rows", file.Rows))
	s.emitAudit(ctx, actor.UserID, name, link)
	return link, nil
}

// Open resolves a download token to its stored file.
func (s *SnapshotService) Open(ctx context.Context, token string) (*SnapshotDownload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	name, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired link")
	}
	file, err := s.storage.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "snapshot no longer available")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to open snapshot")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to read snapshot metadata")
	}
	return &SnapshotDownload{
		File:        file,
		Filename:    displayName(name),
		ContentType: snapshotContentType(name),
		SizeBytes:   info.Size(),
	}, nil
}

func (s *SnapshotService) prune() {
	deleted, err := s.storage.CleanupOlderThan(s.cfg.Retention, s.now())
	if err != nil {
		s.logger.Warn("snapshot cleanup failed", zap.Error(err))
	}
	if len(deleted) > 0 {
		s.logger.Info("expired snapshots removed", zap.Int("count", len(deleted)))
	}
}

func (s *SnapshotService) emitAudit(ctx context.Context, actorID, name string, link *dto.SnapshotLink) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"filename":  link.Filename,
		"rows":      link.Rows,
		"expiresAt": link.ExpiresAt,
	})
	if err := s.audit.CreateAuditLog(context.WithoutCancel(ctx), &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionLedgerSnapshot,
		Resource:   "ledger_snapshot",
		ResourceID: &name,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "snapshot-service",
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func displayName(stored string) string {
	if idx := strings.Index(stored, "_"); idx >= 0 {
		return stored[idx+1:]
	}
	return stored
}

func snapshotContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
