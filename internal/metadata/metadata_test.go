package metadata_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/hierarchy"
	"git.lukeshu.com/lastree/internal/metadata"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

func testSchema() *pointcloud.Schema {
	s := &pointcloud.Schema{
		PosScale:  geom.Vector3{X: 0.001, Y: 0.001, Z: 0.001},
		PosOffset: geom.Vector3{X: 0, Y: 0, Z: 0},
	}
	s.Append(pointcloud.NewAttribute("position", 3, 4, pointcloud.TypeI32))
	intensity := pointcloud.NewAttribute("intensity", 1, 2, pointcloud.TypeU16)
	intensity.UpdateScalar(10)
	intensity.UpdateScalar(200)
	s.Append(intensity)
	classification := pointcloud.NewAttribute("classification", 1, 1, pointcloud.TypeU8)
	classification.UpdateScalar(2)
	classification.UpdateScalar(2)
	s.Append(classification)
	return s
}

func TestBuildOmitsZeroHistogram(t *testing.T) {
	t.Parallel()
	schema := testSchema()
	bbox := geom.BoundingBox{Min: geom.Vector3{}, Max: geom.Vector3{X: 100, Y: 100, Z: 100}}
	hstats := &hierarchy.Stats{FirstChunkSize: 22 * 9, StepSize: 4, Depth: 3}

	doc := metadata.Build(schema, bbox, hstats, 42, metadata.Options{
		Name:       "test-cloud",
		Projection: "EPSG:4326",
		Spacing:    1.0,
		Encoding:   metadata.EncodingBrotli,
	})

	require.Equal(t, "2.0", doc.Version)
	assert.Equal(t, int64(42), doc.Points)
	assert.Equal(t, 3, len(doc.Attributes))

	// "intensity" is 2 bytes wide: no histogram, even though values were
	// observed.
	intensityDoc := doc.Attributes[1]
	assert.Equal(t, "intensity", intensityDoc.Name)
	assert.Nil(t, intensityDoc.Histogram)

	// "classification" is 1 byte wide and has an observed non-zero bin.
	classDoc := doc.Attributes[2]
	assert.Equal(t, "classification", classDoc.Name)
	require.NotNil(t, classDoc.Histogram)
	assert.Equal(t, int64(2), classDoc.Histogram[2])
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()
	schema := testSchema()
	bbox := geom.BoundingBox{Min: geom.Vector3{}, Max: geom.Vector3{X: 1, Y: 1, Z: 1}}
	hstats := &hierarchy.Stats{FirstChunkSize: 22, StepSize: 4, Depth: 1}
	doc := metadata.Build(schema, bbox, hstats, 1, metadata.Options{
		Name:     "r",
		Encoding: metadata.EncodingDefault,
	})

	var buf bytes.Buffer
	require.NoError(t, metadata.Encode(&buf, doc))

	var decoded metadata.Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, doc.Version, decoded.Version)
	assert.Equal(t, doc.Hierarchy, decoded.Hierarchy)
	assert.Equal(t, doc.BoundingBox, decoded.BoundingBox)
}
