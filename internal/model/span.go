package model

// Endpoint is the Zipkin v2 endpoint shape; only the service name is populated.
type Endpoint struct {
	ServiceName string `json:"serviceName"`
}

// Span is a Zipkin v2 span. Timestamp and Duration are in microseconds.
type Span struct {
	ID            string            `json:"id"`
	TraceID       string            `json:"traceId"`
	ParentID      string            `json:"parentId"`
	Timestamp     int64             `json:"timestamp"`
	Duration      int64             `json:"duration"`
	Name          string            `json:"name"`
	LocalEndpoint Endpoint          `json:"localEndpoint"`
	Tags          map[string]string `json:"tags"`
}
