package triage

import (
	"context"
	"strings"

	"triage_server/core/port/out"
)

// DeflectionReply replaces generated text once a human agent takes over.
const DeflectionReply = "お気持ちは理解いたします。適切にお答えするため、担当者にお繋ぎいたします。少々お待ちください。"

const defaultReply = "お問い合わせありがとうございます。ご質問の内容を確認させていただきます。" +
	"もう少し詳しくお聞かせいただけますか？" +
	"具体的な注文番号やサービス名をお知らせいただけるとスムーズにご対応できます。"

type replyRule struct {
	keywords []string
	reply    string
}

// First matching rule wins.
var replyRules = []replyRule{
	{
		keywords: []string{"届かない", "届いていない", "配送", "配達", "発送", "shipping"},
		reply: "ご注文の配送状況を確認いたします。注文番号をお教えいただけますか？" +
			"通常、出荷後2〜5営業日でのお届けとなります。" +
			"追跡番号をお持ちの場合はそちらもお知らせください。",
	},
	{
		keywords: []string{"返品", "返金", "キャンセル", "取り消し", "払い戻し", "return", "refund"},
		reply: "返品・返金のご希望を承ります。ご注文日から30日以内の商品であれば、" +
			"未使用品に限り全額返金いたします。注文番号と返品理由をお知らせください。",
	},
	{
		keywords: []string{"壊れ", "不良", "破損", "故障", "動かない", "傷", "defect", "broken"},
		reply: "商品の不具合について、大変申し訳ございません。" +
			"お手数ですが、不具合の状態がわかるお写真をお送りいただけますか？" +
			"確認後、交換または返金にて対応いたします。",
	},
	{
		keywords: []string{"ログイン", "パスワード", "アカウント", "login", "password", "account"},
		reply: "アカウントに関するお問い合わせですね。" +
			"パスワードリセットはログイン画面の「パスワードを忘れた方」から行えます。" +
			"それでも解決しない場合は、ご登録のメールアドレスをお知らせください。",
	},
	{
		keywords: []string{"請求", "課金", "料金", "支払い", "billing", "charge", "payment"},
		reply: "お支払いに関するお問い合わせを承ります。" +
			"請求内容の詳細を確認いたしますので、対象の注文番号または請求日をお知らせください。",
	},
	{
		keywords: []string{"こんにちは", "はじめまして", "よろしく", "hello", "hi"},
		reply: "こんにちは！カスタマーサポートへようこそ。" +
			"お問い合わせ内容をお聞かせください。何でもお気軽にどうぞ。",
	},
	{
		keywords: []string{"ありがとう", "感謝", "助かり", "thank"},
		reply:    "お役に立てて嬉しいです！他にお困りのことがあればいつでもお声がけください。",
	},
}

// RuleBasedReply picks a canned answer by keyword.
func RuleBasedReply(message string) string {
	lower := strings.ToLower(message)
	for _, r := range replyRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.reply
			}
		}
	}
	return defaultReply
}

// RuleBasedReplier is the offline ReplyGenerator.
type RuleBasedReplier struct{}

var _ out.ReplyGenerator = RuleBasedReplier{}

func (RuleBasedReplier) GenerateReply(_ context.Context, req *out.ReplyRequest) (string, error) {
	return RuleBasedReply(req.Message), nil
}
