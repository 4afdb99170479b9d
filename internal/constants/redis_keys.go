package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// AnalysisModulePrefix 分析模块
	AnalysisModulePrefix = "analysis"

	// EntityCache 分析结果缓存实体
	EntityCache = "cache"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyAnalysisCache 分析结果缓存 (STRING, JSON)
	// 格式: app:analysis:cache:{md5(text)}:{md5(query)}
	KeyAnalysisCache = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityCache + ":%s:%s"

	// KeyRequestLock 同一 request_id 的处理锁 (STRING)
	// 格式: app:analysis:lock:{requestID}
	KeyRequestLock = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityLock + ":%s"
)
