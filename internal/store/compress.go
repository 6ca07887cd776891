package store

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
)

type frozenPayload struct {
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata"`
}

// compressPayload gzips content and metadata together into the single blob
// stored in compressed_payload for frozen-tier memories (§4.4).
func compressPayload(content string, metadataJSON []byte) ([]byte, error) {
	if metadataJSON == nil {
		metadataJSON = []byte("{}")
	}
	raw, err := json.Marshal(frozenPayload{Content: content, Metadata: metadataJSON})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompressPayload reverses compressPayload, restoring content and the
// raw metadata JSON exactly (§8 "freeze -> unfreeze restores content and
// metadata exactly").
func decompressPayload(payload []byte) (content string, metadataJSON []byte, err error) {
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return "", nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}

	var p frozenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", nil, err
	}
	return p.Content, p.Metadata, nil
}
