package document

import (
	"bufio"
	"log/slog"
	"os"

	"github.com/ledongthuc/pdf"

	"docvault/pkg/domain"
)

// extractMetadata pulls best-effort metadata from the spooled upload. It never
// fails the upload: parser errors yield empty metadata and a warning.
func extractMetadata(path, extension string) domain.VersionMetadata {
	switch extension {
	case "pdf":
		return extractPDF(path)
	case "txt":
		return extractText(path)
	default:
		return domain.VersionMetadata{}
	}
}

func extractPDF(path string) (meta domain.VersionMetadata) {
	// The pdf package panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pdf metadata extraction panicked", "err", r)
			meta = domain.VersionMetadata{}
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		slog.Warn("pdf metadata extraction failed", "err", err)
		return domain.VersionMetadata{}
	}
	defer file.Close()

	meta.PageCount = reader.NumPage()
	info := reader.Trailer().Key("Info")
	if !info.IsNull() {
		meta.Author = infoString(info, "Author")
		meta.Title = infoString(info, "Title")
		meta.Subject = infoString(info, "Subject")
		meta.Keywords = infoString(info, "Keywords")
	}
	return meta
}

func infoString(info pdf.Value, key string) string {
	v := info.Key(key)
	if v.Kind() != pdf.String {
		return ""
	}
	return v.Text()
}

func extractText(path string) domain.VersionMetadata {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("text metadata extraction failed", "err", err)
		return domain.VersionMetadata{}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)
	words := 0
	for scanner.Scan() {
		words++
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("text metadata extraction failed", "err", err)
		return domain.VersionMetadata{}
	}
	return domain.VersionMetadata{WordCount: words}
}
