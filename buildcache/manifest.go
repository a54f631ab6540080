package buildcache

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/polydawn/capsule/api/def"
)

// manifestHeader tags the text format of the output-manifest CAS blob
// with a line-oriented `KIND_v1` header line.
const manifestHeader = "BUILD_OUTPUTS_v1"

// encodeOutputManifest renders a ResultGroup as a newline-separated
// `name:digest` text blob.
func encodeOutputManifest(results def.ResultGroup) []byte {
	var buf bytes.Buffer
	buf.WriteString(manifestHeader + "\n")
	for name, res := range results {
		buf.WriteString(name + ":" + res.Digest.String() + "\n")
	}
	return buf.Bytes()
}

func decodeOutputManifest(b []byte) (def.ResultGroup, error) {
	scanner := bufio.NewScanner(bytes.NewReader(b))
	if !scanner.Scan() {
		return nil, Error.New("empty output manifest")
	}
	if scanner.Text() != manifestHeader {
		return nil, Error.New("output manifest missing %q header", manifestHeader)
	}
	results := def.ResultGroup{}
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, Error.New("malformed output manifest line %q", line)
		}
		digest, err := def.ParseDigest(parts[1])
		if err != nil {
			return nil, Error.Wrap(err)
		}
		results[parts[0]] = def.Result{Name: parts[0], Digest: digest}
	}
	if err := scanner.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return results, nil
}
