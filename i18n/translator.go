package i18n

import (
	"strings"
	"sync/atomic"
)

// Translator retrieves localized messages for error codes.
// data provides optional metadata to embed in the message (for example,
// "type", "member" or "element").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

var messages = map[string]map[string]string{
	"en": {
		"frozen":                    "class map is frozen",
		"not_frozen":                "class map is not frozen",
		"duplicate_element":         "duplicate element name",
		"duplicate_discriminator":   "discriminator value already registered",
		"duplicate_class":           "class already registered",
		"conflicting_discriminator": "classes of one interface use different discriminator elements",
		"conflicting_ignore":        "ignoreIfNull and ignoreIfDefault are mutually exclusive",
		"invalid_member":            "invalid member mapping",
		"invalid_default":           "default value does not fit the member type",
		"invalid_codec":             "value codec does not fit the member type",
		"invalid_creator":           "invalid creator",
		"unmapped_type":             "type has no class map",
		"invalid_override":          "invalid mapping override",
		"invalid_id":                "invalid id",
		"unexpected_type":           "unexpected BSON type",
		"unknown_element":           "unknown element",
		"required":                  "required element {element} missing",
		"discriminator_unknown":     "unknown discriminator",
		"member_decode":             "member decode failed",
		"member_encode":             "member encode failed",
		"malformed":                 "malformed document",
		"no_creator":                "no creator can be satisfied",
		"ambiguous_creator":         "more than one creator can be satisfied",
		"creator_failed":            "creator failed",
	},
	"ja": {
		"frozen":                    "クラスマップは凍結済みです",
		"not_frozen":                "クラスマップが凍結されていません",
		"duplicate_element":         "要素名が重複しています",
		"duplicate_discriminator":   "判別子の値が既に登録されています",
		"duplicate_class":           "クラスは既に登録されています",
		"conflicting_discriminator": "同じインターフェースのクラスで判別子の要素名が異なります",
		"conflicting_ignore":        "ignoreIfNull と ignoreIfDefault は同時に指定できません",
		"invalid_member":            "メンバーのマッピングが不正です",
		"invalid_default":           "既定値がメンバーの型に合いません",
		"invalid_codec":             "値コーデックがメンバーの型に合いません",
		"invalid_creator":           "生成関数が不正です",
		"unmapped_type":             "型にクラスマップがありません",
		"invalid_override":          "マッピング上書きが不正です",
		"invalid_id":                "ID が不正です",
		"unexpected_type":           "想定外の BSON 型です",
		"unknown_element":           "未知の要素です",
		"required":                  "必須要素 {element} が不足しています",
		"discriminator_unknown":     "未知の判別子です",
		"member_decode":             "メンバーのデコードに失敗しました",
		"member_encode":             "メンバーのエンコードに失敗しました",
		"malformed":                 "ドキュメントが壊れています",
		"no_creator":                "条件を満たす生成関数がありません",
		"ambiguous_creator":         "条件を満たす生成関数が複数あります",
		"creator_failed":            "生成関数が失敗しました",
	},
}

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := messages[t.lang][code]
	if !ok {
		return code
	}
	if !strings.Contains(msg, "{") {
		return msg
	}
	for k, v := range data {
		if v == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, "{"+k+"}", v)
	}
	return strings.ReplaceAll(msg, " {element}", "")
}

type holder struct{ tr Translator }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{tr: dictTranslator{lang: "en"}}) }

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	current.Store(&holder{tr: dictTranslator{lang: lang}})
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		tr = dictTranslator{lang: "en"}
	}
	current.Store(&holder{tr: tr})
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return current.Load().tr.Message(code, data) }
