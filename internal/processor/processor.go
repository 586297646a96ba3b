// Package processor turns uploaded originals into gallery entries.
//
// For each object-created notification under uploads/ it fetches the object
// and its metadata, writes a resized JPEG under resized/, inserts the gallery
// row and only then deletes the original. A failure at any step stops the
// sequence and leaves the original in place so it can be reprocessed by hand.
// A resized object written before a failed insert is left behind; the
// Outcome reports it.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"wildlens/internal/models"
	"wildlens/internal/objectstore"
)

const (
	UploadPrefix  = "uploads/"
	ResizedPrefix = "resized/"
)

// ImageInserter persists a gallery row and returns its id.
type ImageInserter interface {
	InsertImage(ctx context.Context, img *models.Image) (int64, error)
}

type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Stage names the step an Outcome failed at.
type Stage string

const (
	StageDecodeKey Stage = "decode_key"
	StageFetch     Stage = "fetch"
	StageResize    Stage = "resize"
	StageStore     Stage = "store"
	StageInsert    Stage = "insert"
	StageDelete    Stage = "delete"
)

// Record is one object-created notification.
type Record struct {
	EventName string
	Region    string
	Bucket    string
	Key       string // already URL-decoded
}

// Outcome is the result of handling one Record. For failures it carries
// what was left behind: the original is always still present unless Stage is
// StageDelete, and ResizedWritten tells whether ResizedKey exists.
type Outcome struct {
	Status         Status
	Stage          Stage
	Bucket         string
	SourceKey      string
	ResizedKey     string
	ResizedWritten bool
	URL            string
	ImageID        int64
	Reason         string
	Err            error
}

type Processor struct {
	store    objectstore.Store
	images   ImageInserter
	maxWidth int
	quality  int
}

// New returns a Processor. Zero maxWidth or quality select the defaults.
func New(store objectstore.Store, images ImageInserter, maxWidth, quality int) *Processor {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Processor{
		store:    store,
		images:   images,
		maxWidth: maxWidth,
		quality:  quality,
	}
}

// HandleEvent processes every record of ev in order. A record whose key
// cannot be decoded yields a failed Outcome and does not stop the others.
func (p *Processor) HandleEvent(ctx context.Context, ev events.S3Event) ([]Outcome, error) {
	if len(ev.Records) == 0 {
		return nil, errors.New("processor.HandleEvent: event has no records")
	}

	outcomes := make([]Outcome, 0, len(ev.Records))
	for _, r := range ev.Records {
		rec, err := RecordFromEvent(r)
		if err != nil {
			log.Printf("processor: %v", err)
			outcomes = append(outcomes, Outcome{
				Status:    StatusFailed,
				Stage:     StageDecodeKey,
				Bucket:    r.S3.Bucket.Name,
				SourceKey: r.S3.Object.Key,
				Err:       err,
			})
			continue
		}
		outcomes = append(outcomes, p.Handle(ctx, rec))
	}
	return outcomes, nil
}

// Handle runs the pipeline for a single record.
func (p *Processor) Handle(ctx context.Context, rec Record) Outcome {
	out := Outcome{Bucket: rec.Bucket, SourceKey: rec.Key}

	if !strings.HasPrefix(rec.Key, UploadPrefix) {
		log.Printf("processor: %s is not in %s, skipping", rec.Key, UploadPrefix)
		out.Status = StatusSkipped
		out.Reason = "not an original upload"
		return out
	}
	if rec.EventName != "" && !strings.Contains(rec.EventName, "ObjectCreated") {
		log.Printf("processor: ignoring %s event for %s", rec.EventName, rec.Key)
		out.Status = StatusSkipped
		out.Reason = "not an object-created event"
		return out
	}

	fail := func(stage Stage, err error) Outcome {
		out.Status = StatusFailed
		out.Stage = stage
		out.Err = fmt.Errorf("processor.Handle: %s: %w", stage, err)
		if stage != StageDelete {
			log.Printf("processor: %s failed for %s/%s, original kept: %v", stage, rec.Bucket, rec.Key, err)
		} else {
			log.Printf("processor: %s failed for %s/%s: %v", stage, rec.Bucket, rec.Key, err)
		}
		return out
	}

	meta, err := p.store.Stat(ctx, rec.Bucket, rec.Key)
	if err != nil {
		return fail(StageFetch, err)
	}
	original, err := p.store.Get(ctx, rec.Bucket, rec.Key)
	if err != nil {
		return fail(StageFetch, err)
	}
	log.Printf("processor: fetched %s/%s (%d bytes)", rec.Bucket, rec.Key, len(original))

	resized, err := Resize(original, p.maxWidth, p.quality)
	if err != nil {
		return fail(StageResize, err)
	}

	out.ResizedKey = ResizedKey(rec.Key)
	err = p.store.Put(ctx, rec.Bucket, out.ResizedKey, bytes.NewReader(resized), int64(len(resized)), "image/jpeg", meta)
	if err != nil {
		return fail(StageStore, err)
	}
	out.ResizedWritten = true
	out.URL = p.store.PublicURL(rec.Region, rec.Bucket, out.ResizedKey)
	log.Printf("processor: stored %s (%d bytes)", out.URL, len(resized))

	md := models.MetadataFromMap(meta)
	id, err := p.images.InsertImage(ctx, &models.Image{
		Title:        md.Title,
		Description:  md.Description,
		Category:     md.Category,
		Location:     md.Location,
		Photographer: md.Photographer,
		S3URL:        out.URL,
		S3Key:        out.ResizedKey,
	})
	if err != nil {
		return fail(StageInsert, err)
	}
	out.ImageID = id
	log.Printf("processor: inserted image %d", id)

	if err := p.store.Delete(ctx, rec.Bucket, rec.Key); err != nil {
		return fail(StageDelete, err)
	}

	out.Status = StatusProcessed
	return out
}

// RecordFromEvent extracts a Record, decoding the notification's key the
// way S3 encodes it: '+' for space, then percent-escapes.
func RecordFromEvent(r events.S3EventRecord) (Record, error) {
	key, err := DecodeKey(r.S3.Object.Key)
	if err != nil {
		return Record{}, err
	}
	return Record{
		EventName: r.EventName,
		Region:    r.AWSRegion,
		Bucket:    r.S3.Bucket.Name,
		Key:       key,
	}, nil
}

func DecodeKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode key %q: %w", raw, err)
	}
	return key, nil
}

// ResizedKey maps uploads/<name>.<ext> to resized/<name>.jpg.
func ResizedKey(src string) string {
	base := path.Base(src)
	return ResizedPrefix + strings.TrimSuffix(base, path.Ext(base)) + ".jpg"
}
