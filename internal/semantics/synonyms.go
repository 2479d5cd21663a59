// Package semantics holds the closed synonym tables shared by tool discovery
// and the intent parser, plus the extraction helpers built on them. The
// tables are data: adding a language means adding synonyms, not code.
package semantics

// Tag weights used by discovery scoring.
const (
	ActionWeight   = 0.8
	EntityWeight   = 0.7
	CategoryWeight = 0.5
)

// ActionSynonyms maps each canonical action tag to the multilingual terms
// that imply it when found in a tool's name/description or a user message.
var ActionSynonyms = map[string][]string{
	"read":      {"read", "get", "fetch", "view", "show", "display", "读取", "查看", "获取"},
	"write":     {"write", "set", "put", "enter", "input", "fill", "写入", "填写", "输入"},
	"create":    {"create", "add", "new", "insert", "make", "build", "创建", "新建", "添加", "插入"},
	"delete":    {"delete", "remove", "clear", "erase", "drop", "删除", "清除", "移除"},
	"update":    {"update", "modify", "change", "edit", "revise", "更新", "修改", "编辑"},
	"format":    {"format", "style", "beautify", "decorate", "格式", "样式", "美化"},
	"calculate": {"calculate", "compute", "sum", "count", "average", "total", "计算", "求和", "统计"},
	"analyze":   {"analyze", "analyse", "summarize", "insight", "examine", "分析", "总结", "洞察"},
	"filter":    {"filter", "screen", "sift", "筛选", "过滤"},
	"sort":      {"sort", "order", "rank", "arrange", "排序", "排列"},
	"merge":     {"merge", "combine", "join", "unite", "合并", "拼接"},
	"split":     {"split", "separate", "divide", "拆分", "分列"},
	"copy":      {"copy", "duplicate", "clone", "复制", "拷贝"},
	"move":      {"move", "relocate", "shift", "移动", "挪动"},
	"chart":     {"chart", "plot", "graph", "visualize", "图表", "绘图", "可视化"},
}

// EntitySynonyms maps each canonical entity tag to its multilingual terms.
var EntitySynonyms = map[string][]string{
	"cell":     {"cell", "单元格"},
	"range":    {"range", "area", "region", "区域", "范围"},
	"row":      {"row", "line", "行"},
	"column":   {"column", "col", "列"},
	"sheet":    {"sheet", "worksheet", "tab", "工作表", "表格页"},
	"workbook": {"workbook", "file", "document", "工作簿", "文件"},
	"formula":  {"formula", "function", "expression", "公式", "函数"},
	"value":    {"value", "data", "content", "数值", "数据", "内容"},
	"format":   {"format", "style", "格式", "样式"},
	"chart":    {"chart", "graph", "diagram", "图表", "图形"},
	"table":    {"table", "grid", "表格", "数据表"},
	"filter":   {"filter", "筛选器", "过滤器"},
	"sort":     {"sort", "ordering", "排序"},
	"color":    {"color", "colour", "fill", "颜色", "填充色"},
	"border":   {"border", "frame", "边框"},
	"font":     {"font", "typeface", "字体"},
}

// compressedIntentTerms maps the qualitative routing tags to the message
// terms that imply them. The tag set is open; unknown tags coming from the
// LLM are kept verbatim and ignored by routing.
var compressedIntentTerms = map[string][]string{
	"failure":         {"error", "fail", "broken", "wrong", "fix", "错误", "失败", "坏了", "修复"},
	"automation":      {"batch", "every", "all rows", "automate", "automatic", "批量", "自动", "所有行"},
	"structure":       {"restructure", "reorganize", "rearrange", "layout", "重构", "调整结构", "重排"},
	"maintainability": {"protect", "lock", "prevent", "guard", "保护", "锁定", "防止"},
}
