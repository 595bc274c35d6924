package model

// LokiEntry is one log line in the legacy Loki push schema.
type LokiEntry struct {
	Ts   string `json:"ts"` // ISO8601 with zone suffix
	Line string `json:"line"`
}

// LokiStream groups entries under a Prometheus-style label selector, e.g. {instance="h1"}.
type LokiStream struct {
	Labels  string      `json:"labels"`
	Entries []LokiEntry `json:"entries"`
}

// LokiPush is the body posted to <loki>/api/prom/push.
// TODO: move to the streams[].stream / values schema once all Loki deployments accept it.
type LokiPush struct {
	Streams []LokiStream `json:"streams"`
}
