package model

// Reserved keys of a posted document. Every other key is a payload key.
const (
	KeyJobName       = "jobName"
	KeyHostName      = "hostName"
	KeyFileName      = "fileName"
	KeyEnvironment   = "environment"
	KeySiteName      = "siteName"
	KeyPlatformName  = "platformName"
	KeyComponentName = "componentName"
	KeyDebugLevel    = "debugLevel"
	KeyDBType        = "DBType"
	KeyInfluxBucket  = "InfluxdbBucket"
	KeyInfluxOrg     = "InfluxdbOrg"
	KeySaveLogs      = "saveLogsOnWebServer"
)

// IsReserved reports whether key is a reserved (non-telemetry) key.
func IsReserved(key string) bool {
	switch key {
	case KeyJobName, KeyHostName, KeyFileName,
		KeyEnvironment, KeySiteName, KeyPlatformName, KeyComponentName,
		KeyDebugLevel, KeyDBType, KeyInfluxBucket, KeyInfluxOrg, KeySaveLogs:
		return true
	}
	return false
}

// Kind selects the pipeline a document goes through.
type Kind string

const (
	KindMetrics Kind = "metrics"
	KindLoki    Kind = "loki"
	KindZipkin  Kind = "zipkin"
)

// Dialect is the wire format used for metrics documents.
type Dialect string

const (
	DialectPrometheus Dialect = "prometheus"
	DialectInflux     Dialect = "influxdb"
)

// Field is one payload entry, kept in the order it appeared in the request body.
type Field struct {
	Key   string
	Value string
}

// Header holds the reserved keys of a document in typed form.
// Deployment slots that were absent from the request are nil.
type Header struct {
	JobName       string
	HostName      string
	FileName      string
	Environment   *string
	SiteName      *string
	PlatformName  *string
	ComponentName *string
	DebugLevel    int
	Dialect       Dialect
	InfluxBucket  string
	InfluxOrg     string
	SaveLogs      bool
}

// Document is a decoded and classified posted document.
type Document struct {
	Header
	Kind    Kind
	Payload []Field
}
