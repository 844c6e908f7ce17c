package models

// ObjectLabels is the canonical object-label vocabulary the detector snaps
// every raw detector class name to before anything downstream sees it
// (spec.md GLOSSARY, §4.3 pass A).
var ObjectLabels = []string{
	"dining_table", "sofa", "refrigerator", "oven", "sink", "bed", "toilet",
	"shower", "bathtub", "wardrobe", "desk", "tv", "coffee_table",
	"kitchen_island", "stove", "range_hood", "microwave", "chair", "washer",
	"dryer", "table", "lamp", "cabinet", "mirror", "rug", "curtain",
}

// LabelSynonyms maps raw detector class names (lowercased, spaces or
// hyphens) to the canonical ObjectLabels entry they should be folded into.
// A name not present here that is already canonical passes through
// unchanged; anything else is dropped by pass A.
var LabelSynonyms = map[string]string{
	"couch":           "sofa",
	"settee":          "sofa",
	"loveseat":        "sofa",
	"dining table":    "dining_table",
	"dinner table":    "dining_table",
	"kitchen table":   "dining_table",
	"fridge":          "refrigerator",
	"icebox":          "refrigerator",
	"tv monitor":      "tv",
	"television":      "tv",
	"monitor":         "tv",
	"screen":          "tv",
	"cooktop":         "stove",
	"range":           "stove",
	"hood":            "range_hood",
	"extractor hood":  "range_hood",
	"armoire":         "wardrobe",
	"closet":          "wardrobe",
	"coffee table":    "coffee_table",
	"center table":    "coffee_table",
	"kitchen island":  "kitchen_island",
	"island":          "kitchen_island",
	"washing machine": "washer",
	"clothes dryer":   "dryer",
	"tumble dryer":    "dryer",
	"looking glass":   "mirror",
	"carpet":          "rug",
	"area rug":        "rug",
	"drape":           "curtain",
	"drapes":          "curtain",
	"blinds":          "curtain",
	"armchair":        "chair",
	"stool":           "chair",
	"bench":           "chair",
	"nightstand":      "table",
	"side table":      "table",
	"end table":       "table",
	"console table":   "table",
	"dresser":         "cabinet",
	"chest of drawers": "cabinet",
	"bureau":          "cabinet",
	"bookshelf":       "cabinet",
	"bookcase":        "cabinet",
}

// ColorAnchor is one entry of the 18-color CIELAB palette used to snap a
// clustered LAB centroid to the nearest named color (Open Question iii,
// resolved in SPEC_FULL.md §9).
type ColorAnchor struct {
	Name string
	L, A, B float64
}

// ColorPalette is the closed 18-color vocabulary, each with an anchor point
// in CIELAB space. Nearest-neighbor assignment uses Euclidean distance in
// (L,a,b); black/white are additionally snapped by lightness alone
// (L<15 → black, L>90 → white, regardless of chroma) before falling back to
// nearest-anchor for everything else.
var ColorPalette = []ColorAnchor{
	{"black", 8, 0, 0},
	{"white", 96, 0, 0},
	{"gray", 55, 0, 0},
	{"brown", 35, 18, 28},
	{"beige", 80, 4, 18},
	{"tan", 70, 10, 28},
	{"cream", 92, 1, 12},
	{"red", 45, 55, 35},
	{"orange", 65, 35, 55},
	{"yellow", 88, -5, 75},
	{"green", 50, -40, 30},
	{"teal", 50, -30, -5},
	{"blue", 40, 5, -40},
	{"navy", 22, 8, -30},
	{"purple", 35, 35, -30},
	{"pink", 80, 25, 0},
	{"gold", 75, 5, 55},
	{"silver", 82, 0, 0},
}

// Materials is the closed material vocabulary assigned by vision pass C.
// "unknown" is the explicit no-evidence value and is excluded from
// derived mat: tags (spec.md §8 invariant 1).
var Materials = []string{
	"wood", "metal", "glass", "fabric", "leather", "marble", "stone",
	"ceramic", "plastic", "wicker", "concrete", "granite", "unknown",
}
