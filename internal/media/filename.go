package media

import (
	"regexp"
	"strings"
)

// DefaultTitle はメタデータにタイトルが無い場合のファイル名です。
const DefaultTitle = "download"

var unsafeTitleChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// SanitizeTitle はパスとして扱えない文字をタイトルから取り除きます。
func SanitizeTitle(title string) string {
	return unsafeTitleChars.ReplaceAllString(title, "")
}

// OutputFilename はタイトルと拡張子から成果物のファイル名を組み立てます。
func OutputFilename(title, ext string) string {
	return SanitizeTitle(title) + "." + strings.TrimPrefix(ext, ".")
}

// outputTemplate は yt-dlp の出力テンプレート内で % をエスケープします。
func outputTemplate(sanitizedTitle string) string {
	return strings.ReplaceAll(sanitizedTitle, "%", "%%") + ".%(ext)s"
}
