package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/secure-events/backend/internal/certificates"
	"github.com/secure-events/backend/pkg/queue"
	"github.com/secure-events/backend/pkg/storage"
)

// ArtifactProcessor processes certificate artifact jobs: render the QR code
// for an issued certificate, upload it to S3, record the object key.
type ArtifactProcessor struct {
	certs  certificates.Repository
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewArtifactProcessor creates a certificate artifact processor.
func NewArtifactProcessor(certs certificates.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ArtifactProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactProcessor{certs: certs, s3: s3, queue: q, logger: logger}
}

// Process executes one certificate artifact job.
func (p *ArtifactProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeCertificateArtifact {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.CertificateArtifactPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	cert, err := p.certs.GetByCertificateID(ctx, payload.CertificateID)
	if err != nil {
		return fmt.Errorf("certificate not found: %s", payload.CertificateID)
	}
	if cert.QRObjectKey != "" {
		p.logger.Info("artifact already rendered", zap.String("certificate_id", cert.CertificateID))
		return nil
	}

	png, err := certificates.RenderQR(cert.QRPayload)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}

	key := storage.QRCodeKey(cert.CertificateID)
	if err := p.s3.Upload(ctx, key, storage.ContentTypePNG, bytes.NewReader(png)); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.certs.SetQRObjectKey(ctx, cert.CertificateID, key); err != nil {
		p.logger.Error("update certificate artifact key failed", zap.Error(err), zap.String("certificate_id", cert.CertificateID))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("certificate artifact rendered", zap.String("certificate_id", cert.CertificateID), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArtifactProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("artifact worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
