package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

// EnvelopeMagic identifies fatigo model blobs.
const EnvelopeMagic = "FATIGO-MODEL"

// EnvelopeHeader は永続化されたモデルの自己記述ヘッダ
type EnvelopeHeader struct {
	Magic         string
	SchemaVersion int
	NFeatures     int
	Kind          string
	CreatedAt     time.Time
	// Checksum is the sha256 of the encoded payload.
	Checksum string
}

// WriteEnvelope はヘッダとgobペイロードをwに書き込む
//
// 使用例:
//
//	hdr := model.EnvelopeHeader{SchemaVersion: 1, NFeatures: 35, Kind: "ensemble"}
//	err := model.WriteEnvelope(f, hdr, snapshot)
func WriteEnvelope(w io.Writer, hdr EnvelopeHeader, payload interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	sum := sha256.Sum256(buf.Bytes())
	hdr.Magic = EnvelopeMagic
	hdr.Checksum = hex.EncodeToString(sum[:])
	if hdr.CreatedAt.IsZero() {
		hdr.CreatedAt = time.Now().UTC()
	}

	enc := gob.NewEncoder(w)
	if err := enc.Encode(hdr); err != nil {
		return errors.Wrap(err, "failed to encode envelope header")
	}
	if err := enc.Encode(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to encode envelope payload")
	}
	return nil
}

// ReadEnvelope decodes a blob written by WriteEnvelope into payload.
// Non-zero SchemaVersion and NFeatures in expect must match the header
// exactly; a mismatch yields a SchemaMismatchError, any decoding or checksum
// failure a CorruptStateError.
func ReadEnvelope(r io.Reader, source string, expect EnvelopeHeader, payload interface{}) (EnvelopeHeader, error) {
	dec := gob.NewDecoder(r)

	var hdr EnvelopeHeader
	if err := dec.Decode(&hdr); err != nil {
		return hdr, errors.NewCorruptStateError(source, err)
	}
	if hdr.Magic != EnvelopeMagic {
		return hdr, errors.NewCorruptStateError(source, errors.Newf("bad magic %q", hdr.Magic))
	}
	if expect.SchemaVersion != 0 && hdr.SchemaVersion != expect.SchemaVersion {
		return hdr, errors.NewSchemaMismatchError(source, "schema_version", expect.SchemaVersion, hdr.SchemaVersion)
	}
	if expect.NFeatures != 0 && hdr.NFeatures != expect.NFeatures {
		return hdr, errors.NewSchemaMismatchError(source, "n_features", expect.NFeatures, hdr.NFeatures)
	}
	if expect.Kind != "" && hdr.Kind != expect.Kind {
		return hdr, errors.NewSchemaMismatchError(source, "kind", expect.Kind, hdr.Kind)
	}

	var raw []byte
	if err := dec.Decode(&raw); err != nil {
		return hdr, errors.NewCorruptStateError(source, err)
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != hdr.Checksum {
		return hdr, errors.NewCorruptStateError(source, errors.New("checksum mismatch"))
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(payload); err != nil {
		return hdr, errors.NewCorruptStateError(source, err)
	}
	return hdr, nil
}

// LoadEnvelopeFile はファイルからモデルを読み込む
func LoadEnvelopeFile(path string, expect EnvelopeHeader, payload interface{}) (EnvelopeHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return EnvelopeHeader{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()
	return ReadEnvelope(file, path, expect, payload)
}
