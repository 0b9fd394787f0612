package structure

import "fmt"

// DataSeries names one fixed record field encoded into its own stream,
// identified by its two-character wire code.
type DataSeries string

const (
	DSBamFlags        DataSeries = "BF"
	DSCompressionFlag DataSeries = "CF"
	DSRefID           DataSeries = "RI"
	DSReadLength      DataSeries = "RL"
	DSAlignmentStart  DataSeries = "AP"
	DSReadGroup       DataSeries = "RG"
	DSReadName        DataSeries = "RN"
	DSMateFlags       DataSeries = "MF"
	DSNextFragmentRef DataSeries = "NS"
	DSNextFragmentPos DataSeries = "NP"
	DSTemplateSize    DataSeries = "TS"
	DSNextFragment    DataSeries = "NF"
	DSTagIDList       DataSeries = "TL"
	DSFeatureCount    DataSeries = "FN"
	DSFeatureCode     DataSeries = "FC"
	DSFeaturePosition DataSeries = "FP"
	DSDeletionLength  DataSeries = "DL"
	DSBasesStretch    DataSeries = "BB"
	DSScoresStretch   DataSeries = "QQ"
	DSSubstitution    DataSeries = "BS"
	DSInsertion       DataSeries = "IN"
	DSRefSkip         DataSeries = "RS"
	DSPadding         DataSeries = "PD"
	DSHardClip        DataSeries = "HC"
	DSSoftClip        DataSeries = "SC"
	DSMappingQuality  DataSeries = "MQ"
	DSBase            DataSeries = "BA"
	DSQualityScore    DataSeries = "QS"
	DSTagCount        DataSeries = "TC"
	DSTagNameType     DataSeries = "TN"
)

// allDataSeries lists every series in canonical (alphabetical code) order,
// the order used for serialization.
var allDataSeries = []DataSeries{
	DSAlignmentStart, DSBase, DSBasesStretch, DSBamFlags, DSSubstitution,
	DSCompressionFlag, DSDeletionLength, DSFeatureCode, DSFeatureCount,
	DSFeaturePosition, DSHardClip, DSInsertion, DSMateFlags, DSMappingQuality,
	DSNextFragment, DSNextFragmentPos, DSNextFragmentRef, DSPadding,
	DSScoresStretch, DSQualityScore, DSReadGroup, DSRefID, DSReadLength,
	DSReadName, DSRefSkip, DSSoftClip, DSTagCount, DSTagIDList,
	DSTagNameType, DSTemplateSize,
}

var dataSeriesSet = func() map[DataSeries]bool {
	set := make(map[DataSeries]bool, len(allDataSeries))
	for _, ds := range allDataSeries {
		set[ds] = true
	}
	return set
}()

// DataSeriesFromCode validates a two-character wire code. An unknown code is
// a format error.
func DataSeriesFromCode(code string) (DataSeries, error) {
	ds := DataSeries(code)
	if !dataSeriesSet[ds] {
		return "", fmt.Errorf("unknown data series code %q", code)
	}
	return ds, nil
}

// EncodingID identifies an encoding scheme by its wire value.
type EncodingID byte

const (
	EncodingNull          EncodingID = 0
	EncodingExternal      EncodingID = 1
	EncodingGolomb        EncodingID = 2
	EncodingHuffman       EncodingID = 3
	EncodingByteArrayLen  EncodingID = 4
	EncodingByteArrayStop EncodingID = 5
	EncodingBeta          EncodingID = 6
	EncodingSubexp        EncodingID = 7
	EncodingGolombRice    EncodingID = 8
	EncodingGamma         EncodingID = 9
)

// EncodingIDFromValue validates a wire encoding id.
func EncodingIDFromValue(v int32) (EncodingID, error) {
	if v < 0 || v > int32(EncodingGamma) {
		return 0, fmt.Errorf("unknown encoding id: %d", v)
	}
	return EncodingID(v), nil
}
