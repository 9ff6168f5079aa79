package chat

import (
	"path"
	"strings"
)

// FileSupport says how a stored file is handed to the model.
type FileSupport string

const (
	SupportNative FileSupport = "native"
	SupportText   FileSupport = "text"
	SupportNone   FileSupport = "none"
)

const (
	MaxImageSize = 5 << 20
	MaxFileSize  = 10 << 20
)

// FileType is the size ceiling and handling of a file type.
type FileType struct {
	MaxSize int64
	Support FileSupport
}

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

var mediaTypes = map[string]FileType{
	"application/pdf":        {10 << 20, SupportNative},
	"text/plain":             {1 << 20, SupportText},
	"text/markdown":          {1 << 20, SupportText},
	"text/csv":               {2 << 20, SupportText},
	"text/html":              {1 << 20, SupportText},
	"application/json":       {1 << 20, SupportText},
	"application/xml":        {1 << 20, SupportText},
	"text/xml":               {1 << 20, SupportText},
	"application/x-yaml":     {1 << 20, SupportText},
	"text/yaml":              {1 << 20, SupportText},
	"text/javascript":        {512 << 10, SupportText},
	"application/javascript": {512 << 10, SupportText},
	"text/typescript":        {512 << 10, SupportText},
	"text/x-python":          {512 << 10, SupportText},
	"application/x-python":   {512 << 10, SupportText},
}

var textExtensions = map[string]bool{}

func init() {
	for _, ext := range strings.Fields(`txt md markdown csv tsv json xml yaml yml toml html htm css
		js jsx ts tsx mjs py rb rs go java c cpp h hpp sh bash zsh sql graphql gql
		env conf ini cfg log diff patch svelte vue astro swift kt scala r lua zig`) {
		textExtensions[ext] = true
	}
}

// IsImageType reports whether mediaType can be sent as an image block.
func IsImageType(mediaType string) bool {
	return imageTypes[mediaType]
}

// ClassifyFile resolves by declared media type, then any text/* type, then
// the file name extension.
func ClassifyFile(mediaType, name string) FileType {
	if ft, ok := mediaTypes[mediaType]; ok {
		return ft
	}
	if strings.HasPrefix(mediaType, "text/") {
		return FileType{1 << 20, SupportText}
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch {
	case ext == "pdf":
		return FileType{10 << 20, SupportNative}
	case textExtensions[ext]:
		return FileType{1 << 20, SupportText}
	}
	return FileType{MaxFileSize, SupportNone}
}
