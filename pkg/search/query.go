// Package search implements the three-stage retrieval pipeline: a query
// parser/translator, a hybrid SQL+vector retriever (Stage A), a batched VLM
// verifier (Stage B), and a re-ranker (Stage C), orchestrated by Engine
// (spec.md §4.5-§4.8).
package search

import (
	"sort"
	"strings"

	"github.com/piclocate/piclocate-engine/pkg/models"
)

// hebrewLexicon is the curated word-by-word translation dictionary
// (spec.md §4.5: "≥ 45 entries covering rooms, objects, colors,
// materials"). Keys are lowercase Hebrew phrases (one to three
// whitespace-separated words); values are the English phrase substituted
// in their place before any downstream parsing runs. Longest key wins when
// several keys could match at the same position (translateHebrew scans
// 3-word, then 2-word, then 1-word windows).
var hebrewLexicon = map[string]string{
	// Rooms
	"מטבח":          "kitchen",
	"במטבח":         "kitchen", // "in the kitchen", common prefixed form
	"סלון":          "living room",
	"חדר שינה":      "bedroom",
	"חדר אמבטיה":    "bathroom",
	"חדר אוכל":      "dining room",
	"משרד":          "office",
	"מסדרון":        "hallway",
	"מרפסת":         "balcony",
	"חדר ילדים":     "kids room",
	"חדר כביסה":     "laundry room",
	"מוסך":          "garage",
	"חצר":           "outdoor patio",
	"כניסה":         "entryway",

	// Objects
	"שולחן אוכל":    "dining table",
	"ספה":           "sofa",
	"מקרר":          "refrigerator",
	"תנור":          "oven",
	"כיור":          "sink",
	"מיטה":          "bed",
	"אסלה":          "toilet",
	"מקלחת":         "shower",
	"אמבטיה":        "bathtub",
	"ארון בגדים":    "wardrobe",
	"שולחן כתיבה":   "desk",
	"טלוויזיה":      "tv",
	"שולחן קפה":     "coffee table",
	"אי מטבח":       "kitchen island",
	"כיריים":        "stove",
	"קולט אדים":     "range hood",
	"מיקרוגל":       "microwave",
	"כיסא":          "chair",
	"מכונת כביסה":   "washer",
	"מייבש כביסה":   "dryer",
	"שולחן":         "table",
	"מנורה":         "lamp",
	"ארון":          "cabinet",
	"מראה":          "mirror",
	"שטיח":          "rug",
	"וילון":         "curtain",

	// Colors
	"שחור":          "black",
	"לבן":           "white",
	"אפור":          "gray",
	"חום":           "brown",
	"בז'":           "beige",
	"חום בהיר":      "tan",
	"קרם":           "cream",
	"אדום":          "red",
	"כתום":          "orange",
	"צהוב":          "yellow",
	"ירוק":          "green",
	"טורקיז":        "teal",
	"כחול":          "blue",
	"כחול כהה":      "navy",
	"סגול":          "purple",
	"ורוד":          "pink",
	"זהב":           "gold",
	"כסף":           "silver",

	// Materials
	"עץ":            "wood",
	"מתכת":          "metal",
	"זכוכית":        "glass",
	"בד":            "fabric",
	"עור":           "leather",
	"שיש":           "marble",
	"אבן":           "stone",
	"קרמיקה":        "ceramic",
	"פלסטיק":        "plastic",
	"ראטן":          "wicker",
	"בטון":          "concrete",
}

// roomKeywords maps every English room keyword (including the compound
// phrases spec.md §4.5 calls out explicitly) to its Room. Checked longest
// phrase first so "living room" wins over a bare "room"-like substring.
var roomKeywords = []struct {
	phrase string
	room   models.Room
}{
	{"living room", models.RoomLivingRoom},
	{"dining room", models.RoomDiningRoom},
	{"kids room", models.RoomKidsRoom},
	{"laundry room", models.RoomLaundry},
	{"outdoor patio", models.RoomOutdoor},
	{"kitchen", models.RoomKitchen},
	{"bedroom", models.RoomBedroom},
	{"bathroom", models.RoomBathroom},
	{"office", models.RoomOffice},
	{"hallway", models.RoomHallway},
	{"balcony", models.RoomBalcony},
	{"garage", models.RoomGarage},
	{"patio", models.RoomOutdoor},
	{"outdoor", models.RoomOutdoor},
	{"entryway", models.RoomEntryway},
}

// objectVocab maps every recognized English object phrase (canonical
// labels plus their synonyms) to the canonical label, longest phrase
// first.
var objectVocab = buildObjectVocab()

func buildObjectVocab() map[string]string {
	vocab := make(map[string]string, len(models.ObjectLabels)+len(models.LabelSynonyms))
	for _, label := range models.ObjectLabels {
		vocab[strings.ReplaceAll(label, "_", " ")] = label
	}
	for phrase, label := range models.LabelSynonyms {
		vocab[phrase] = label
	}
	return vocab
}

var colorNames = buildColorSet()

func buildColorSet() map[string]struct{} {
	set := make(map[string]struct{}, len(models.ColorPalette))
	for _, c := range models.ColorPalette {
		set[c.Name] = struct{}{}
	}
	return set
}

var materialNames = buildMaterialSet()

func buildMaterialSet() map[string]struct{} {
	set := make(map[string]struct{}, len(models.Materials))
	for _, m := range models.Materials {
		if m == "unknown" {
			continue
		}
		set[m] = struct{}{}
	}
	return set
}

// ParseQuery implements spec.md §4.5. lang is one of "en", "he", or
// "auto"/""; "auto" detects Hebrew by code-point range.
func ParseQuery(rawQuery string, lang string) models.ParsedQuery {
	resolved := lang
	if resolved == "" || resolved == "auto" {
		resolved = detectLanguage(rawQuery)
	}

	text := strings.ToLower(rawQuery)
	if resolved == "he" {
		text = translateHebrew(text)
	}
	text = normalizeText(text)

	room, text := extractRoom(text)
	objects, freeColors, freeMaterials := extractEntities(strings.Fields(text))

	return models.ParsedQuery{
		Room:           room,
		Objects:        objects,
		FreeColors:     freeColors,
		FreeMaterials:  freeMaterials,
		NormalizedText: text,
	}
}

// detectLanguage reports "he" if rawQuery contains any Hebrew letter
// (U+0590-U+05FF), else "en".
func detectLanguage(rawQuery string) string {
	for _, r := range rawQuery {
		if r >= 0x0590 && r <= 0x05FF {
			return "he"
		}
	}
	return "en"
}

// translateHebrew applies hebrewLexicon word-by-word over text, greedily
// matching the longest n-gram (up to three words) at each position. Words
// with no lexicon entry pass through unchanged.
func translateHebrew(text string) string {
	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))

	for i := 0; i < len(tokens); {
		matched := false
		for n := min(3, len(tokens)-i); n >= 1; n-- {
			phrase := strings.Join(tokens[i:i+n], " ")
			if eng, ok := hebrewLexicon[phrase]; ok {
				out = append(out, eng)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

// normalizeText lowercases and strips punctuation that would otherwise
// break the word-boundary lookups below, collapsing runs of whitespace.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		case r == '\'' || r == '-':
			b.WriteRune(r) // keep apostrophes/hyphens: "bez'", "kitchen-island"
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// extractRoom finds the first (longest-match) room keyword in text and
// returns it along with text with that phrase removed, so it isn't also
// picked up as an object/color/material token.
func extractRoom(text string) (*models.Room, string) {
	candidates := append([]struct {
		phrase string
		room   models.Room
	}(nil), roomKeywords...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].phrase) > len(candidates[j].phrase)
	})

	for _, c := range candidates {
		if idx := strings.Index(text, c.phrase); idx != -1 {
			room := c.room
			text = strings.TrimSpace(strings.Replace(text, c.phrase, " ", 1))
			return &room, text
		}
	}
	return nil, text
}

// entityMatch is one recognized object/color/material token span, kept so
// modifiers can be matched to the nearest object regardless of scan order.
type entityMatch struct {
	kind   string // "object", "color", or "material"
	pos    int    // token index the span starts at
	value  string // color/material name; unused for kind=="object"
	objIdx int    // index into the objects slice; valid for kind=="object"
}

// attachWindow bounds how many tokens away a color/material may sit from
// an object and still be considered "attached" to it, per spec.md §4.5's
// worked example ("black table" ⇒ {obj:table, col:black}: the modifier
// immediately precedes its object).
const attachWindow = 3

// extractEntities scans tokens left to right, recognizing object phrases
// (longest match first), color names, and material names, then attaches
// each color/material to its nearest object (preferring one it precedes,
// since English adjectives lead their noun) within attachWindow tokens;
// anything left over becomes a free filter (spec.md §4.5).
func extractEntities(tokens []string) ([]models.ObjectFilter, []string, []string) {
	var objects []models.ObjectFilter
	var entities []entityMatch

	for i := 0; i < len(tokens); {
		if i+1 < len(tokens) {
			if label, ok := objectVocab[tokens[i]+" "+tokens[i+1]]; ok {
				objects = append(objects, models.ObjectFilter{Label: label})
				entities = append(entities, entityMatch{kind: "object", pos: i, objIdx: len(objects) - 1})
				i += 2
				continue
			}
		}
		word := tokens[i]
		switch {
		case objectVocab[word] != "":
			objects = append(objects, models.ObjectFilter{Label: objectVocab[word]})
			entities = append(entities, entityMatch{kind: "object", pos: i, objIdx: len(objects) - 1})
		case isColorName(word):
			entities = append(entities, entityMatch{kind: "color", pos: i, value: word})
		case isMaterialName(word):
			entities = append(entities, entityMatch{kind: "material", pos: i, value: word})
		}
		i++
	}

	var freeColors, freeMaterials []string
	for _, e := range entities {
		if e.kind != "color" && e.kind != "material" {
			continue
		}
		objIdx := nearestObject(entities, e.pos)
		switch {
		case objIdx >= 0 && e.kind == "color" && objects[objIdx].Color == "":
			objects[objIdx].Color = e.value
		case objIdx >= 0 && e.kind == "material" && objects[objIdx].Material == "":
			objects[objIdx].Material = e.value
		case e.kind == "color":
			freeColors = append(freeColors, e.value)
		default:
			freeMaterials = append(freeMaterials, e.value)
		}
	}
	return objects, freeColors, freeMaterials
}

// nearestObject returns the objIdx of the object entity closest to pos,
// preferring one it precedes (forward) over one it follows (backward),
// within attachWindow tokens. Returns -1 if none qualifies.
func nearestObject(entities []entityMatch, pos int) int {
	followIdx, followDist := -1, attachWindow+1
	precedeIdx, precedeDist := -1, attachWindow+1

	for _, o := range entities {
		if o.kind != "object" {
			continue
		}
		if o.pos > pos {
			if d := o.pos - pos; d <= attachWindow && d < followDist {
				followDist, followIdx = d, o.objIdx
			}
		} else if o.pos < pos {
			if d := pos - o.pos; d <= attachWindow && d < precedeDist {
				precedeDist, precedeIdx = d, o.objIdx
			}
		}
	}
	if followIdx >= 0 {
		return followIdx
	}
	return precedeIdx
}

func isColorName(word string) bool {
	_, ok := colorNames[word]
	return ok
}

func isMaterialName(word string) bool {
	_, ok := materialNames[word]
	return ok
}
