package torrent

// Category is a Torznab search category as used by Jackett.
type Category struct {
	Name string
	ID   int
}

var (
	CategoryMovie  = Category{Name: "movie", ID: 2000}
	CategorySeries = Category{Name: "series", ID: 5000}
)

// CategoryFromName maps a Stremio media type to its Torznab category.
func CategoryFromName(name string) (Category, bool) {
	switch name {
	case CategoryMovie.Name:
		return CategoryMovie, true
	case CategorySeries.Name:
		return CategorySeries, true
	}
	return Category{}, false
}
