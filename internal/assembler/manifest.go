package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const manifestName = "manifest.ism"

// manifestTemplate is the server manifest skeleton; the empty switch element
// is replaced with one video entry per render plus an audio entry.
const manifestTemplate = `<?xml version="1.0" encoding="utf-8"?>
<smil xmlns="http://www.w3.org/2001/SMIL20/Language">
  <head>
    <meta name="formats" content="mp4" />
  </head>
  <body>
    <switch></switch>
  </body>
</smil>
`

// writeStreamingManifest builds the manifest.ism for an assembled asset and
// uploads it next to the renders. Video entries are ordered by object size
// ascending; the smallest rendition also carries the audio track.
func (s *Service) writeStreamingManifest(ctx context.Context, assetID string) error {
	prefix := assetID + "/"
	objects, err := s.blob.List(ctx, s.blobs.OutputBucket, prefix)
	if err != nil {
		return fmt.Errorf("list output asset %s: %w", assetID, err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("output asset %s has no objects", assetID)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Size < objects[j].Size })

	var sw strings.Builder
	sw.WriteString("<switch>\n")
	for _, obj := range objects {
		fmt.Fprintf(&sw, "      <video src=%q />\n", strings.TrimPrefix(obj.Key, prefix))
	}
	fmt.Fprintf(&sw, "      <audio src=%q title=%q />\n", strings.TrimPrefix(objects[0].Key, prefix), "English")
	sw.WriteString("    </switch>")

	manifest := strings.Replace(manifestTemplate, "<switch></switch>", sw.String(), 1)

	if err := s.blob.Upload(ctx, s.blobs.OutputBucket, prefix+manifestName, strings.NewReader(manifest), "application/smil+xml"); err != nil {
		return fmt.Errorf("upload %s: %w", manifestName, err)
	}
	return nil
}
