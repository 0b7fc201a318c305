package prompts

// Template names shipped with the binary. A config file may override any
// of them or add more.
const (
	Strategist    = "strategist"
	StrategistEN  = "strategist_en"
	BlogArticle   = "blog_article"
	SuperEditor   = "supereditor"
	SuperEditorEN = "supereditor_en"

	// DefaultTemplate is used when no template is requested.
	DefaultTemplate = Strategist

	insightSuffix = "_insight_v2"
	chronoSuffix  = "_chronological_v2"
)

// dualFamilies are template names that expand into an insight part and a
// chronological part instead of naming a single template.
var dualFamilies = map[string]bool{
	SuperEditor:   true,
	SuperEditorEN: true,
}

// IsDualFamily reports whether name selects two-part synthesis.
func IsDualFamily(name string) bool {
	return dualFamilies[name]
}

// InsightTemplate returns the insight-part template name for a family.
func InsightTemplate(family string) string { return family + insightSuffix }

// ChronologicalTemplate returns the chronological-part template name for a family.
func ChronologicalTemplate(family string) string { return family + chronoSuffix }

const jaSystem = "あなたはYouTube動画の内容を日本語で的確に要約する編集者です。出力は必ず自然な日本語で書いてください。"

const enSystem = "You are an editor who writes accurate English summaries of YouTube videos. Write in natural English only."

// Builtin returns the default template table. The returned map is a fresh
// copy on every call.
func Builtin() map[string]Template {
	templates := []Template{
		{
			Name:          Strategist,
			Description:   "Strategic takeaways for decision makers",
			SystemMessage: jaSystem,
			ToneInstructions: []string{
				"- 経営戦略コンサルタントの視点で、冷静かつ論理的に書く",
				"- 誇張や感嘆表現は避け、事実と示唆を区別する",
			},
			OutputInstructions: []string{
				"## 要約",
				"- 動画の主張を3〜5文でまとめる",
				"## 重要なポイント",
				"- 箇条書きで5〜8項目、各項目の要点を **太字** で示す",
				"## 示唆とアクション",
				"- 視聴者が取るべき具体的な行動を3つ挙げる",
			},
		},
		{
			Name:          StrategistEN,
			Description:   "Strategic takeaways, English output",
			SystemMessage: enSystem,
			ToneInstructions: []string{
				"- Write as a strategy consultant: calm, structured, evidence first",
				"- Separate what the speaker claims from what it implies",
			},
			OutputInstructions: []string{
				"## Summary",
				"- Three to five sentences capturing the core argument",
				"## Key Points",
				"- Five to eight bullets, each opening with a **bold** phrase",
				"## Implications",
				"- Three concrete actions for the viewer",
			},
		},
		{
			Name:          BlogArticle,
			Description:   "Readable blog post built from the transcript",
			SystemMessage: jaSystem,
			ToneInstructions: []string{
				"- 読みやすいブログ記事の文体（です・ます調）で書く",
				"- 話者の口癖や言い淀みは再現しない",
			},
			OutputInstructions: []string{
				"## 要約",
				"- 冒頭に記事全体の概要を2〜3文で書く",
				"- 内容に沿って見出し（###）を立て、段落で説明する",
				"- 最後に「まとめ」として要点を箇条書きにする",
			},
		},
		{
			Name:          InsightTemplate(SuperEditor),
			Description:   "Insight half of the two-part summary",
			SystemMessage: jaSystem,
			ToneInstructions: []string{
				"- 熟練の編集者として、動画の本質的な洞察を抽出する",
				"- 表面的な言い換えではなく、背景や意図を掘り下げる",
			},
			OutputInstructions: []string{
				"## 要約",
				"- 動画の核心を3文以内で述べる",
				"## 洞察",
				"- 重要な洞察を3〜6項目、各項目を **「キーワード」** で始める",
				"## 注目すべき発言",
				"- 印象的な発言を引用し、その意味を一文で補足する",
			},
		},
		{
			Name:          ChronologicalTemplate(SuperEditor),
			Description:   "Timeline half of the two-part summary",
			SystemMessage: jaSystem,
			ToneInstructions: []string{
				"- 客観的かつ簡潔に、話の流れを追う",
			},
			OutputInstructions: []string{
				"## 時系列の内容",
				"- 文字起こしのタイムスタンプを使い、話題の切り替わりごとに `[HH:MM:SS]` を付けて箇条書きにする",
				"- 各項目は1〜2文で、話された内容のみを書く",
			},
		},
		{
			Name:          InsightTemplate(SuperEditorEN),
			Description:   "Insight half of the two-part summary, English output",
			SystemMessage: enSystem,
			ToneInstructions: []string{
				"- Write as a senior editor pulling out the real insight, not a paraphrase",
			},
			OutputInstructions: []string{
				"## Summary",
				"- The core of the video in at most three sentences",
				"## Insights",
				"- Three to six insights, each opening with a **bold keyword**",
				"## Notable Quotes",
				"- Quote memorable lines with a one-sentence gloss",
			},
		},
		{
			Name:          ChronologicalTemplate(SuperEditorEN),
			Description:   "Timeline half of the two-part summary, English output",
			SystemMessage: enSystem,
			ToneInstructions: []string{
				"- Objective and brief; follow the flow of the talk",
			},
			OutputInstructions: []string{
				"## Timeline",
				"- One bullet per topic change, prefixed with its `[HH:MM:SS]` timestamp",
				"- One or two sentences each, covering only what was said",
			},
		},
	}

	out := make(map[string]Template, len(templates))
	for _, t := range templates {
		out[t.Name] = t
	}
	return out
}

