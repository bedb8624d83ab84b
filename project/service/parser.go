package service

import (
	"net/url"
	"strings"
)

// ProjectFields はチャット本文から抽出した作品情報です
type ProjectFields struct {
	Name        string
	Description string
	URL         string
	TeamName    string
	TeamMembers string
}

type projectField int

const (
	fieldNone projectField = iota
	fieldName
	fieldDescription
	fieldURL
	fieldTeamName
	fieldTeamMembers
)

// 長いプレフィックスから順に判定する（"project name:" を "name:" より先に）
var fieldPrefixes = []struct {
	prefix string
	field  projectField
}{
	{"project name:", fieldName},
	{"team members:", fieldTeamMembers},
	{"team name:", fieldTeamName},
	{"description:", fieldDescription},
	{"name:", fieldName},
	{"url:", fieldURL},
}

// 作品投稿らしさを判定するキーワード
var submissionKeywords = []string{
	"project name:",
	"name:",
	"description:",
	"url:",
	"team name:",
	"team members:",
	"github:",
	"demo:",
}

// IsProjectSubmission は本文が作品投稿らしいかを判定します
// パーサーを呼ぶ前の軽い事前フィルタです
func IsProjectSubmission(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range submissionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Parser はチャット本文を作品情報に変換します
type Parser struct {
	// RequireTeam が true の場合はチーム名とチームメンバーも必須にします
	RequireTeam bool
}

// ParseProject は5項目すべてを必須としてパースします
func ParseProject(text string) (*ProjectFields, bool) {
	return Parser{RequireTeam: true}.Parse(text)
}

// Parse は本文を行単位で読み、プレフィックス行で現在のフィールドを切り替え、
// それ以外の行を現在のフィールドの続きとして扱います。
// 必須項目が欠けている場合や URL が不正な場合は false を返します
func (p Parser) Parse(text string) (*ProjectFields, bool) {
	var f ProjectFields
	current := fieldNone

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if field, rest, ok := matchPrefix(line); ok {
			current = field
			f.set(field, rest)
			continue
		}
		f.set(current, line)
	}

	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.URL = strings.TrimSpace(f.URL)
	f.TeamName = strings.TrimSpace(f.TeamName)
	f.TeamMembers = strings.TrimSpace(f.TeamMembers)

	if f.Name == "" || f.Description == "" || f.URL == "" {
		return nil, false
	}
	if p.RequireTeam && (f.TeamName == "" || f.TeamMembers == "") {
		return nil, false
	}

	normalized, ok := NormalizeURL(f.URL)
	if !ok {
		return nil, false
	}
	f.URL = normalized

	return &f, true
}

// set はフィールドに値を反映します
// 単一行フィールドは未設定の場合のみ、複数行フィールドは区切り文字で連結します
func (f *ProjectFields) set(field projectField, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch field {
	case fieldName:
		if f.Name == "" {
			f.Name = value
		}
	case fieldURL:
		if f.URL == "" {
			f.URL = value
		}
	case fieldTeamName:
		if f.TeamName == "" {
			f.TeamName = value
		}
	case fieldDescription:
		f.Description = joinNonEmpty(f.Description, value, " ")
	case fieldTeamMembers:
		f.TeamMembers = joinNonEmpty(f.TeamMembers, value, ", ")
	}
}

// matchPrefix は行頭のフィールドプレフィックスを大文字小文字を区別せずに判定します
func matchPrefix(line string) (projectField, string, bool) {
	lower := strings.ToLower(line)
	for _, fp := range fieldPrefixes {
		if strings.HasPrefix(lower, fp.prefix) {
			return fp.field, line[len(fp.prefix):], true
		}
	}
	return fieldNone, "", false
}

// NormalizeURL は絶対URLとして解釈できればそのまま、できなければ
// "https://" を補って再解釈し、受理した形を返します
func NormalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if isAbsoluteURL(raw) {
		return raw, true
	}
	withScheme := "https://" + raw
	if isAbsoluteURL(withScheme) {
		return withScheme, true
	}
	return "", false
}

func isAbsoluteURL(s string) bool {
	if strings.ContainsAny(s, " \t") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	if u.Host != "" {
		return true
	}
	// "mailto:foo@example.com" のような不透明URL
	return u.Opaque != "" && !strings.HasPrefix(u.Opaque, "/")
}

func joinNonEmpty(existing, value, sep string) string {
	if existing == "" {
		return value
	}
	return existing + sep + value
}
