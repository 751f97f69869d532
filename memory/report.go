package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/memflow/gateway"
)

var beijing = time.FixedZone("CST", 8*60*60)

// tsToBeijing 将秒或毫秒时间戳渲染为北京时间。
func tsToBeijing(ts float64) string {
	if ts <= 0 {
		return ""
	}
	ts = normalizeTimestamp(ts)
	return time.Unix(int64(ts), 0).In(beijing).Format("2006-01-02 15:04")
}

// FormatReport 渲染 Markdown 格式的记忆查询报告。userProfile 为真时
// 报告标题改为用户画像。
func FormatReport(data *gateway.SearchData, userProfile bool) string {
	if data == nil || (len(data.MemoryDetailList) == 0 && len(data.PreferenceDetailList) == 0) {
		return "### 🧠 记忆查询报告\n\n> ∅ 未找到相关记忆"
	}

	var lines []string
	if userProfile {
		lines = append(lines, "### 🧠 用户画像报告")
	} else {
		lines = append(lines, "### 🧠 记忆查询报告")
	}
	lines = append(lines, "")

	if len(data.MemoryDetailList) > 0 {
		for _, item := range data.MemoryDetailList {
			lines = append(lines, fmt.Sprintf("#### %s ⏰ %s", item.MemoryKey, tsToBeijing(item.CreateTime)))
			lines = append(lines, fmt.Sprintf("- **内容**：%s", item.MemoryValue))
			tags := make([]string, 0, len(item.Tags))
			for _, tag := range item.Tags {
				tags = append(tags, "`"+tag+"`")
			}
			lines = append(lines, fmt.Sprintf("- **标签**：%s", strings.Join(tags, " ")))
			lines = append(lines, fmt.Sprintf("- **元数据**：`置信度：%.2f`｜`相关性：%.6f`｜`类型：%s`",
				item.Confidence, item.Relativity, item.MemoryType))
			lines = append(lines, "")
		}
	} else {
		lines = append(lines, "> ∅ 未找到相关记忆 ", "")
	}

	if len(data.PreferenceDetailList) > 0 {
		lines = append(lines, "---", "", "#### 🔍 偏好洞察区（系统推断）")
		for i, pref := range data.PreferenceDetailList {
			lines = append(lines, fmt.Sprintf("**%d. %s**  ", i+1, pref.Preference))
			lines = append(lines, fmt.Sprintf("🕒 %s  ", tsToBeijing(pref.CreateTime)))
			lines = append(lines, fmt.Sprintf("> 💡 **推理依据**：%s", pref.Reasoning))
			lines = append(lines, "")
		}
	}

	if data.PreferenceNote != "" {
		lines = append(lines, fmt.Sprintf("*%s*", data.PreferenceNote))
	}

	return strings.Join(lines, "\n")
}
