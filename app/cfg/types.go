package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Application configuration
	SourcesDir        string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Fetch configuration
	UserAgent    string
	FetchTimeout int
	MaxBodySize  int64
	MaxRedirects int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
