// Package classification implements the rule-based harassment and sentiment
// classifiers and the risk combination over their results.
package classification

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"triage_server/core/domain"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Catalog definition (YAML-overridable)
// =============================================================================

type PatternSpec struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
}

type HarassmentSpec struct {
	Critical []PatternSpec `yaml:"critical"`
	High     []PatternSpec `yaml:"high"`
	Medium   []PatternSpec `yaml:"medium"`
	Low      []PatternSpec `yaml:"low"`
}

type SentimentSpec struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
	Anger    []string `yaml:"anger"`
	// Ignore lists phrases blanked out before tallying, for words that
	// merely contain a keyword (ばかり contains ばか).
	Ignore []string `yaml:"ignore"`
}

type IssueSpec struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// CatalogSpec is the uncompiled form. Empty sections fall back to defaults.
type CatalogSpec struct {
	Harassment      HarassmentSpec             `yaml:"harassment"`
	Sentiment       SentimentSpec              `yaml:"sentiment"`
	Issues          []IssueSpec                `yaml:"issues"`
	OrderNumbers    []string                   `yaml:"order_numbers"`
	Recommendations map[domain.Severity]string `yaml:"recommendations"`
}

// DefaultCatalogSpec returns the built-in Japanese support catalog.
func DefaultCatalogSpec() CatalogSpec {
	return CatalogSpec{
		Harassment: HarassmentSpec{
			Critical: []PatternSpec{
				{`殺す|ころす|コロス`, "death_threat"},
				{`死ね|しね|シネ`, "death_wish"},
				{`爆破|放火|刺す`, "violence_threat"},
				{`訴え(る|てやる)|裁判|弁護士呼ぶ`, "legal_threat"},
				{`(上|部)長.*出せ.*殺|殺.*上.*出せ`, "escalation_threat"},
			},
			High: []PatternSpec{
				{`バカ|ばか(?:[^り]|$)|馬鹿`, "insult_baka"},
				{`アホ|あほ|阿呆`, "insult_aho"},
				{`カス|かす|クズ|くず|屑`, "insult_kasu"},
				{`ゴミ|ごみ|ゴミクズ`, "insult_gomi"},
				{`キチガイ|きちがい|基地外`, "insult_kichigai"},
				{`ふざけるな|ふざけんな|ナメてる|舐めてる`, "contempt"},
				{`能無し|無能|役立たず|使えない`, "incompetence_insult"},
				{`ボケ|ぼけ|ドアホ`, "insult_boke"},
				{`クソ|くそ|糞`, "insult_kuso"},
				{`ブス|デブ|ハゲ|キモい|きもい`, "appearance_insult"},
			},
			Medium: []PatternSpec{
				{`今すぐ|すぐに|直ちに|至急`, "urgency_pressure"},
				{`責任.*取れ|責任者.*出せ|上の者`, "escalation_demand"},
				{`金.*返せ|弁償しろ|賠償`, "compensation_demand"},
				{`(SNS|ネット|Twitter|X).*晒す|拡散`, "social_media_threat"},
				{`二度と.*使わない|解約.*してやる`, "service_threat"},
				{`いい加減に|何回.*言え|何度も`, "frustration_repeat"},
			},
			Low: []PatternSpec{
				{`困る|困って|不便`, "frustration"},
				{`遅い|遅すぎ|待たされ`, "complaint_slow"},
				{`分かりにくい|説明.*ない|不親切`, "complaint_unclear"},
			},
		},
		Sentiment: SentimentSpec{
			Positive: []string{
				"ありがとう", "助かり", "感謝", "嬉しい", "うれしい", "素晴らしい",
				"すばらしい", "最高", "完璧", "良い", "よい", "いい", "丁寧",
				"親切", "迅速", "便利", "満足", "解決", "サンキュー", "神対応",
				"great", "thanks", "thank you", "excellent", "good", "perfect",
			},
			Negative: []string{
				"不満", "不便", "残念", "がっかり", "困る", "困って", "心配",
				"不安", "面倒", "嫌", "いやだ", "ダメ", "だめ", "問題",
				"使えない", "分からない", "エラー", "バグ", "障害", "遅い",
				"改善", "苦情", "クレーム",
			},
			Anger: []string{
				"怒り", "怒って", "激怒", "ふざけるな", "ふざけんな",
				"いい加減にしろ", "いい加減にして", "許さない", "許せない",
				"ありえない", "信じられない", "最悪", "最低", "酷い", "ひどい",
				"クソ", "くそ", "バカ", "ばか", "アホ", "死ね", "殺す",
				"キレ", "ブチギレ", "ブチ切れ", "腹が立つ", "腹立つ",
				"むかつく", "ムカつく", "イライラ", "苛々", "頭にくる",
				"なめてる", "ナメてる", "舐めてる", "ゴミ", "カス",
			},
			Ignore: []string{"ばかり"},
		},
		Issues: []IssueSpec{
			{"配送問題", []string{`届かない|届いていない|配送.*遅|配達.*来ない|発送.*まだ`}},
			{"品質問題", []string{`壊れ|破損|不良|傷|汚れ|欠陥|故障|動かない`}},
			{"返品・返金", []string{`返品|返金|キャンセル|取り消し|払い戻し`}},
			{"アカウント問題", []string{`ログイン.*できない|パスワード|アカウント.*ロック`}},
			{"料金問題", []string{`請求.*おかしい|二重.*課金|料金.*違う|値段.*間違`}},
			{"対応不満", []string{`対応.*悪い|何度も.*問い合わせ|たらい回し|返事.*ない`}},
		},
		OrderNumbers: []string{
			`(?:(?i:注文番号|オーダー|order\s*(?:number|#|no\.?)))\s*[：:]?\s*([A-Z0-9\-]*[0-9][A-Z0-9\-]*)`,
			`\b((?i:ORD)-\d+)\b`,
		},
		Recommendations: map[domain.Severity]string{
			domain.SeverityCritical: "即座に上席者へエスカレーション。通話録音を保存し、法務部門に報告してください。",
			domain.SeverityHigh:     "冷静に対応し、上席者への引き継ぎを準備してください。対応履歴を詳細に記録してください。",
			domain.SeverityMedium:   "落ち着いたトーンで対応を継続。感情的にならず、事実ベースで回答してください。",
			domain.SeverityLow:      "通常対応を継続。お客様の不満に寄り添いながら解決策を提示してください。",
			domain.SeverityNone:     "通常対応を継続してください。",
		},
	}
}

// =============================================================================
// Compiled catalog
// =============================================================================

type rule struct {
	re       *regexp.Regexp
	source   string
	category string
}

type tier struct {
	severity domain.Severity
	rules    []rule
}

type keyword struct {
	raw   string
	lower string
}

type issueMatcher struct {
	name     string
	patterns []*regexp.Regexp
}

// Catalog is the compiled, read-only pattern set. It is safe for concurrent
// use and is never mutated after Compile returns.
type Catalog struct {
	tiers           []tier
	positive        []keyword
	negative        []keyword
	anger           []keyword
	ignore          []string
	issues          []issueMatcher
	orderPatterns   []*regexp.Regexp
	recommendations map[domain.Severity]string
}

// Compile validates and compiles a spec, filling empty sections from defaults.
func Compile(spec CatalogSpec) (*Catalog, error) {
	def := DefaultCatalogSpec()
	spec = mergeSpec(def, spec)

	c := &Catalog{
		positive:        toKeywords(spec.Sentiment.Positive),
		negative:        toKeywords(spec.Sentiment.Negative),
		anger:           toKeywords(spec.Sentiment.Anger),
		ignore:          lowerAll(spec.Sentiment.Ignore),
		recommendations: make(map[domain.Severity]string, len(def.Recommendations)),
	}

	for sev, text := range def.Recommendations {
		c.recommendations[sev] = text
	}
	for sev, text := range spec.Recommendations {
		if !sev.IsValid() {
			return nil, fmt.Errorf("recommendation for unknown severity %q", sev)
		}
		c.recommendations[sev] = text
	}

	ordered := []struct {
		sev   domain.Severity
		specs []PatternSpec
	}{
		{domain.SeverityCritical, spec.Harassment.Critical},
		{domain.SeverityHigh, spec.Harassment.High},
		{domain.SeverityMedium, spec.Harassment.Medium},
		{domain.SeverityLow, spec.Harassment.Low},
	}
	for _, o := range ordered {
		t := tier{severity: o.sev}
		for _, p := range o.specs {
			re, err := regexp.Compile("(?i)" + p.Pattern)
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", o.sev, p.Pattern, err)
			}
			if p.Category == "" {
				return nil, fmt.Errorf("%s pattern %q has no category", o.sev, p.Pattern)
			}
			t.rules = append(t.rules, rule{re: re, source: p.Pattern, category: p.Category})
		}
		c.tiers = append(c.tiers, t)
	}

	for _, is := range spec.Issues {
		m := issueMatcher{name: is.Name}
		for _, p := range is.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile issue %q pattern %q: %w", is.Name, p, err)
			}
			m.patterns = append(m.patterns, re)
		}
		c.issues = append(c.issues, m)
	}

	for _, p := range spec.OrderNumbers {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile order pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("order pattern %q needs a capture group", p)
		}
		c.orderPatterns = append(c.orderPatterns, re)
	}

	return c, nil
}

// MustDefaultCatalog compiles the built-in catalog and panics on failure.
func MustDefaultCatalog() *Catalog {
	c, err := Compile(DefaultCatalogSpec())
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog compiles the catalog, applying the YAML file at path when set.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return Compile(DefaultCatalogSpec())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var spec CatalogSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	return Compile(spec)
}

func mergeSpec(def, override CatalogSpec) CatalogSpec {
	out := def
	if len(override.Harassment.Critical) > 0 {
		out.Harassment.Critical = override.Harassment.Critical
	}
	if len(override.Harassment.High) > 0 {
		out.Harassment.High = override.Harassment.High
	}
	if len(override.Harassment.Medium) > 0 {
		out.Harassment.Medium = override.Harassment.Medium
	}
	if len(override.Harassment.Low) > 0 {
		out.Harassment.Low = override.Harassment.Low
	}
	if len(override.Sentiment.Positive) > 0 {
		out.Sentiment.Positive = override.Sentiment.Positive
	}
	if len(override.Sentiment.Negative) > 0 {
		out.Sentiment.Negative = override.Sentiment.Negative
	}
	if len(override.Sentiment.Anger) > 0 {
		out.Sentiment.Anger = override.Sentiment.Anger
	}
	if len(override.Sentiment.Ignore) > 0 {
		out.Sentiment.Ignore = override.Sentiment.Ignore
	}
	if len(override.Issues) > 0 {
		out.Issues = override.Issues
	}
	if len(override.OrderNumbers) > 0 {
		out.OrderNumbers = override.OrderNumbers
	}
	out.Recommendations = override.Recommendations
	return out
}

func toKeywords(words []string) []keyword {
	out := make([]keyword, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		out = append(out, keyword{raw: w, lower: strings.ToLower(w)})
	}
	return out
}

// Recommendation returns the advisory text for a severity.
func (c *Catalog) Recommendation(s domain.Severity) string {
	return c.recommendations[s]
}

// DetectIssues returns issue names whose patterns match, in catalog order.
func (c *Catalog) DetectIssues(text string) []string {
	var found []string
	for _, m := range c.issues {
		for _, re := range m.patterns {
			if re.MatchString(text) {
				found = append(found, m.name)
				break
			}
		}
	}
	return found
}

// ExtractOrderNumbers returns upper-cased reference numbers in first-seen order.
func (c *Catalog) ExtractOrderNumbers(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, re := range c.orderPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n := strings.ToUpper(strings.TrimSpace(m[1]))
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}
