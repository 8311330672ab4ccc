package enum

type KVStoreType string

const (
	KVStoreTypeBadger KVStoreType = "badger"
	KVStoreTypeConsul KVStoreType = "consul"
)

type DBType string

const (
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
	DBTypeSQLite   DBType = "sqlite"
)

// DrawSourceType selects where historical draws are read from.
type DrawSourceType string

const (
	DrawSourceSQL DrawSourceType = "sql"
	DrawSourceKV  DrawSourceType = "kv"
)

// PipelineMode names the phase a worker runs.
type PipelineMode string

const (
	ModeBuild   PipelineMode = "build"
	ModeRefresh PipelineMode = "refresh"
	ModeCover   PipelineMode = "cover"
	// ModeAll chains build, refresh and cover on a schedule.
	ModeAll     PipelineMode = "all"
)
