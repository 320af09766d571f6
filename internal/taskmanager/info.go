package taskmanager

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/singleflight"

	"github.com/ramiqadoumi/go-task-agent/internal/postgres"
)

//go:embed body_schema.json
var bodySchemaJSON []byte

var bodySchema = jsonschema.MustCompileString("body_schema.json", string(bodySchemaJSON))

// OutputSpec is one expected output file of a transformation.
type OutputSpec struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// TransformationBody is the JSON document stored as the transformation Body.
type TransformationBody struct {
	TargetSE   []string     `json:"target_se,omitempty"`
	SourceSE   []string     `json:"source_se,omitempty"`
	OutputList []OutputSpec `json:"output_list,omitempty"`
}

// TransformationInfo is the per-transformation metadata the builder needs.
type TransformationInfo struct {
	ID   int64
	Name string
	Type string
	Body TransformationBody
}

// ParameterSource is the slice of the task store the info cache reads.
type ParameterSource interface {
	GetTransformationParameters(ctx context.Context, transID int64, fields []string) (map[string]string, error)
}

// ErrInvalidBody marks a transformation body that fails schema validation.
var ErrInvalidBody = errors.New("invalid transformation body")

// InfoCache resolves TransformationInfo once per transformation and keeps it
// for the life of the process. Failed lookups are not cached.
type InfoCache struct {
	source ParameterSource
	group  singleflight.Group

	mu    sync.RWMutex
	infos map[int64]*TransformationInfo
}

// NewInfoCache creates an empty cache over source.
func NewInfoCache(source ParameterSource) *InfoCache {
	return &InfoCache{source: source, infos: make(map[int64]*TransformationInfo)}
}

// Get returns the cached info, loading it on first use. Concurrent callers for
// the same transformation share one store round trip.
func (c *InfoCache) Get(ctx context.Context, transID int64) (*TransformationInfo, error) {
	c.mu.RLock()
	info, ok := c.infos[transID]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	v, err, _ := c.group.Do(strconv.FormatInt(transID, 10), func() (any, error) {
		info, err := c.load(ctx, transID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.infos[transID] = info
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TransformationInfo), nil
}

func (c *InfoCache) load(ctx context.Context, transID int64) (*TransformationInfo, error) {
	params, err := c.source.GetTransformationParameters(ctx, transID,
		[]string{postgres.ParamName, postgres.ParamType, postgres.ParamBody})
	if err != nil {
		return nil, err
	}
	body, err := parseBody([]byte(params[postgres.ParamBody]))
	if err != nil {
		return nil, fmt.Errorf("transformation %d: %w", transID, err)
	}
	return &TransformationInfo{
		ID:   transID,
		Name: params[postgres.ParamName],
		Type: params[postgres.ParamType],
		Body: body,
	}, nil
}

func parseBody(raw []byte) (TransformationBody, error) {
	var body TransformationBody
	if len(bytes.TrimSpace(raw)) == 0 {
		return body, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return body, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if err := bodySchema.Validate(doc); err != nil {
		return body, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return body, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return body, nil
}
