// Package models holds the five-entity data model of the image index:
// Image, Object, RoomScore, Caption, and Tag (spec.md §3).
package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is one of the closed set of room labels the vision analyzer can
// assign (spec.md GLOSSARY).
type Room string

const (
	RoomKitchen     Room = "kitchen"
	RoomLivingRoom  Room = "living_room"
	RoomBedroom     Room = "bedroom"
	RoomBathroom    Room = "bathroom"
	RoomDiningRoom  Room = "dining_room"
	RoomOffice      Room = "office"
	RoomHallway     Room = "hallway"
	RoomBalcony     Room = "balcony"
	RoomKidsRoom    Room = "kids_room"
	RoomLaundry     Room = "laundry"
	RoomGarage      Room = "garage"
	RoomOutdoor     Room = "outdoor_patio"
	RoomEntryway    Room = "entryway"
	RoomUnknown     Room = "unknown"
)

// Rooms lists the closed vocabulary in a stable order, used both for the
// room-classification weight matrix and for longest-match query parsing.
var Rooms = []Room{
	RoomKitchen, RoomLivingRoom, RoomBedroom, RoomBathroom, RoomDiningRoom,
	RoomOffice, RoomHallway, RoomBalcony, RoomKidsRoom, RoomLaundry,
	RoomGarage, RoomOutdoor, RoomEntryway, RoomUnknown,
}

// Image is the root entity of the data model. It owns Objects, a Caption,
// RoomScores, and Tags (spec.md §3). There are no back-pointers in memory:
// the schema is a tree rooted here with cascade delete in SQL.
type Image struct {
	ID             uuid.UUID  `json:"id"`
	ExternalID     string     `json:"external_id"`
	FileName       string     `json:"file_name"`
	FolderPath     string     `json:"folder_path"`
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	PHash          uint64     `json:"phash"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
	Room           Room       `json:"room"`
	RoomConfidence float64    `json:"room_confidence"`
	StyleTags      []string   `json:"style_tags"`
	IndexedAt      time.Time  `json:"indexed_at"`

	Objects    []Object    `json:"objects,omitempty"`
	Caption    *Caption    `json:"caption,omitempty"`
	RoomScores []RoomScore `json:"room_scores,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
}

// DeriveTags computes the canonical tag set implied by an Image and its Objects,
// per spec.md §8 invariant 1: {room:<room>} ∪ {obj:<l>} ∪ {col:<c>} ∪ {mat:<m>},
// plus one style:<s> tag per entry of StyleTags.
func (img *Image) DeriveTags() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	if img.Room != "" && img.Room != RoomUnknown {
		add("room:" + string(img.Room))
	}
	for _, o := range img.Objects {
		if o.Label != "" {
			add("obj:" + o.Label)
		}
		if o.ColorName != "" {
			add("col:" + o.ColorName)
		}
		if o.Material != "" && o.Material != "unknown" {
			add("mat:" + o.Material)
		}
	}
	for _, s := range img.StyleTags {
		add("style:" + s)
	}
	return out
}
