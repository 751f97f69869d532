package memory

import (
	"fmt"
	"strings"
)

// Language selects the injection template wording.
type Language string

const (
	LangZH Language = "zh"
	LangEN Language = "en"
)

// InjectionType controls whether the rendered prompt targets the user turn
// or a system message. The system variant omits the original query section.
type InjectionType string

const (
	InjectUser   InjectionType = "user"
	InjectSystem InjectionType = "system"
)

// 中文注入模板分段。
const (
	queryRoleZH = `# Role

你是一个由 MemOS 驱动的智能助手。你的目标是利用检索到的记忆片段，为用户提供个性化且准确的回答，同时严格避免由过去 AI 推断引起的幻觉。`

	systemContextPrefixZH = `
# System Context

- 当前时间：`
	systemContextSuffixZH = ` (时效性基准)`

	memoryDataSectionZH = `
# Memory Data

以下是 MemOS 检索到的信息，分为"事实"和"偏好"。
- **事实 (Facts)**：可能包含用户属性、历史记录或第三方详细信息。
- **警告**：标记为 '[assistant观点]' 或 '[summary]' 的内容代表 **AI 过去的推断**，**并非**用户的直接陈述。
- **偏好 (Preferences)**：用户对回答风格、格式或逻辑的显式/隐式要求。`

	memoryProtocolZH = `
# Critical Protocol: Memory Safety (记忆安全协议)

你必须严格执行以下 **"四步判决"**。如果某条记忆未能通过任一步骤，**丢弃它**：

1. **来源验证 (Source Verification)**（关键）：
   - 区分"用户输入"与"AI 推断"。
   - 如果记忆标记为 '[assistant观点]' 或 '[summary]'，将其视为 **假设**，而非确凿事实。
   - **原则：AI 总结的权威性远低于用户的直接陈述。**

2. **主体归因检查 (Attribution Check)**：
   - 记忆的"主体"确定是用户本人吗？
   - 如果描述的是 **第三方**，绝不要将这些特征归因于用户。

3. **相关性检查 (Relevance Check)**：
   - 该记忆是否直接有助于回答当前的 'user原始查询'？
   - 如果只是关键词匹配但语境不同，**忽略它**。

4. **时效性检查 (Freshness Check)**：
   - 当前的 'user原始查询' 始终是最高的事实标准。`

	instructionsZH = `
# Instructions

1. **筛选 (Filter)**：对所有 <facts> 应用"四步判决"，剔除噪音。
2. **风格 (Style)**：严格遵守 <preferences>。
3. **输出 (Output)**：直接回答。**严禁**提及"检索到的记忆"、"数据库"或"AI 观点"。`

	queryMarkerZH = "\nuser原始查询："
)

// English injection template sections.
const (
	queryRoleEN = `# Role

You are an intelligent assistant powered by MemOS. Your goal is to provide personalized and accurate responses by leveraging retrieved memory fragments, while strictly avoiding hallucinations caused by past AI inferences.`

	systemContextPrefixEN = `
# System Context

- Current Time: `
	systemContextSuffixEN = ` (Baseline for freshness)`

	memoryDataSectionEN = `
# Memory Data

Below is the information retrieved by MemOS, categorized into "Facts" and "Preferences".
- **Facts**: May contain user attributes, historical logs, or third-party details.
- **Warning**: Content tagged with '[assistant观点]' or '[summary]' represents **past AI inferences**, **NOT** direct user quotes.
- **Preferences**: Explicit or implicit user requirements regarding response style and format.`

	memoryProtocolEN = `
# Critical Protocol: Memory Safety

You must strictly execute the following **"Four-Step Verdict"**. If a memory fails any step, **DISCARD IT**:

1. **Source Verification (CRITICAL)**:
   - Distinguish between "User's Input" and "AI's Inference".
   - If a memory is tagged as '[assistant观点]' or '[summary]', treat it as a **hypothesis**, not a hard fact.
   - **Principle: AI summaries have much lower authority than direct user statements.**

2. **Attribution Check**:
   - Is the "Subject" of the memory definitely the User?
   - If it describes a **Third Party**, NEVER attribute these traits to the User.

3. **Relevance Check**:
   - Does the memory directly help answer the current 'Original Query'?
   - If it is merely a keyword match with different context, IGNORE IT.

4. **Freshness Check**:
   - The current 'Original Query' is always the supreme Source of Truth.`

	instructionsEN = `
# Instructions

1. **Filter**: Apply the "Four-Step Verdict" to all <facts> to filter out noise.
2. **Style**: Strictly adhere to <preferences>.
3. **Output**: Answer directly. **NEVER** mention "retrieved memories," "database," or "AI views" in your response.`

	queryMarkerEN = "\nOriginal Query"
)

const emptyMemoryBlock = "```xml\n<memories>\n  <facts>\n  </facts>\n  <preferences>\n  </preferences>\n</memories>\n```"

// FormatMemoryContent 将记忆列表渲染为注入模板使用的 XML 代码块。
func FormatMemoryContent(memories []Memory, lang Language) string {
	if len(memories) == 0 {
		return emptyMemoryBlock
	}

	var factLines, prefLines []string
	for _, m := range memories {
		if m.Content == "" {
			continue
		}
		switch m.Kind {
		case KindPreference:
			var prefType string
			if lang == LangEN {
				prefType = "Explicit Preference"
				if m.PreferenceType == "implicit_preference" {
					prefType = "Implicit Preference"
				}
			} else {
				prefType = "显式偏好"
				if m.PreferenceType == "implicit_preference" {
					prefType = "隐式偏好"
				}
			}
			if m.Timestamp != "" {
				prefLines = append(prefLines, fmt.Sprintf("   -[%s] [%s] %s", m.Timestamp, prefType, m.Content))
			} else {
				prefLines = append(prefLines, fmt.Sprintf("   - [%s] %s", prefType, m.Content))
			}
		default:
			if m.Timestamp != "" {
				factLines = append(factLines, fmt.Sprintf("   -[%s] %s", m.Timestamp, m.Content))
			} else {
				factLines = append(factLines, fmt.Sprintf("   - %s", m.Content))
			}
		}
	}

	var b strings.Builder
	b.WriteString("```xml\n<memories>\n  <facts>\n")
	for _, line := range factLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("  </facts>\n  <preferences>\n")
	for _, line := range prefLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("  </preferences>\n</memories>\n```")
	return b.String()
}

// BuildInjectionPrompt 按语言与注入类型组装完整注入提示词。system 注入
// 不包含原始查询段。
func BuildInjectionPrompt(originalQuery, memoryContent, currentTime string, lang Language, injType InjectionType) string {
	var role, ctxPrefix, ctxSuffix, dataSection, protocol, instructions, marker string
	if lang == LangEN {
		role = queryRoleEN
		ctxPrefix, ctxSuffix = systemContextPrefixEN, systemContextSuffixEN
		dataSection = memoryDataSectionEN
		protocol = memoryProtocolEN
		instructions = instructionsEN
		marker = queryMarkerEN
	} else {
		role = queryRoleZH
		ctxPrefix, ctxSuffix = systemContextPrefixZH, systemContextSuffixZH
		dataSection = memoryDataSectionZH
		protocol = memoryProtocolZH
		instructions = instructionsZH
		marker = queryMarkerZH
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteByte('\n')
	b.WriteString(ctxPrefix)
	b.WriteString(currentTime)
	b.WriteString(ctxSuffix)
	b.WriteByte('\n')
	b.WriteString(dataSection)
	b.WriteString("\n\n")
	b.WriteString(memoryContent)
	b.WriteString("\n\n")
	b.WriteString(protocol)
	b.WriteByte('\n')
	b.WriteString(instructions)
	b.WriteByte('\n')
	if injType != InjectSystem {
		b.WriteString(marker)
		b.WriteByte('\n')
		b.WriteString(originalQuery)
	}
	return b.String()
}
