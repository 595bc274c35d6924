// Package ingest decodes posted documents and classifies them into metrics, log
// and trace documents.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/jastats/statsgateway/internal/model"
	"github.com/jastats/statsgateway/internal/storage"
	"github.com/jastats/statsgateway/internal/tagset"
)

// Errors for malformed requests. All of them map to a 4xx response.
var (
	ErrEmptyBody         = errors.New("empty request body")
	ErrInvalidJSON       = errors.New("invalid JSON document")
	ErrMissingJobName    = errors.New("missing jobName")
	ErrMissingHostName   = errors.New("missing hostName")
	ErrMissingFileName   = errors.New("missing fileName")
	ErrInvalidDebugLevel = errors.New("invalid debugLevel")
)

// MaxDebugLevel is the highest accepted debugLevel.
const MaxDebugLevel = 4

// Options control request validation.
type Options struct {
	// RequireFileName is set when the gateway has a persistence directory.
	RequireFileName bool
}

// Decode parses body into a Document. Payload keys keep the order in which they
// appear in the body; a repeated key keeps its first position and its last value.
func Decode(body []byte, opts Options) (*model.Document, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	fields, err := readObject(body)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{Header: model.Header{Dialect: model.DialectPrometheus}}
	present := make(map[string]string)
	for _, f := range fields {
		if model.IsReserved(f.Key) {
			present[f.Key] = f.Value
			continue
		}
		doc.Payload = append(doc.Payload, f)
	}

	if err := fillHeader(&doc.Header, present, opts); err != nil {
		return nil, err
	}
	doc.Kind = Classify(doc.JobName)
	return doc, nil
}

func readObject(body []byte) ([]model.Field, error) {
	iter := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowIterator(body)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrInvalidJSON)
	}

	var fields []model.Field
	index := make(map[string]int)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		v := readValue(it)
		if i, ok := index[key]; ok {
			fields[i].Value = v
			return true
		}
		index[key] = len(fields)
		fields = append(fields, model.Field{Key: key, Value: v})
		return true
	})
	if iter.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, iter.Error)
	}
	// only whitespace may follow the object
	iter.WhatIsNext()
	if iter.Error != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidJSON)
	}
	return fields, nil
}

func readValue(it *jsoniter.Iterator) string {
	switch it.WhatIsNext() {
	case jsoniter.StringValue:
		return it.ReadString()
	case jsoniter.NilValue:
		it.ReadNil()
		return ""
	default:
		return it.ReadAny().ToString()
	}
}

func fillHeader(h *model.Header, kv map[string]string, opts Options) error {
	h.JobName = kv[model.KeyJobName]
	if h.JobName == "" {
		return ErrMissingJobName
	}
	if err := tagset.CheckValue(model.KeyJobName, h.JobName); err != nil {
		return err
	}
	h.HostName = kv[model.KeyHostName]
	if h.HostName == "" {
		return ErrMissingHostName
	}

	h.FileName = kv[model.KeyFileName]
	if h.FileName == "" && opts.RequireFileName {
		return ErrMissingFileName
	}
	if h.FileName != "" {
		if err := storage.CheckFileName(h.FileName); err != nil {
			return err
		}
	}

	slot := func(key string) *string {
		if v, ok := kv[key]; ok {
			return &v
		}
		return nil
	}
	h.Environment = slot(model.KeyEnvironment)
	h.SiteName = slot(model.KeySiteName)
	h.PlatformName = slot(model.KeyPlatformName)
	h.ComponentName = slot(model.KeyComponentName)

	if v, ok := kv[model.KeyDebugLevel]; ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 || n > MaxDebugLevel {
			return fmt.Errorf("%w: %q", ErrInvalidDebugLevel, v)
		}
		h.DebugLevel = n
	}
	if strings.EqualFold(kv[model.KeyDBType], "influxdb") {
		h.Dialect = model.DialectInflux
	}
	h.InfluxBucket = kv[model.KeyInfluxBucket]
	h.InfluxOrg = kv[model.KeyInfluxOrg]
	h.SaveLogs = strings.EqualFold(kv[model.KeySaveLogs], "yes")
	return nil
}

// Classify maps a jobName to the pipeline that handles it.
func Classify(jobName string) model.Kind {
	switch jobName {
	case "loki":
		return model.KindLoki
	case "zipkin":
		return model.KindZipkin
	default:
		return model.KindMetrics
	}
}

// WantsPersistence reports whether the payload of doc should be appended to its
// file. Metrics follow the gateway-wide switch; log and trace documents opt in
// with saveLogsOnWebServer.
func WantsPersistence(doc *model.Document, saveStats bool) bool {
	if doc.FileName == "" {
		return false
	}
	if doc.Kind == model.KindMetrics {
		return saveStats
	}
	return doc.SaveLogs
}
