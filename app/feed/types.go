package feed

// Feed definition types, loaded from feeds/*.yml. Selector sets are approved
// before a feed exists and are treated as immutable input here; they only
// change through a definition update between runs.

type Config struct {
	Name           string          // Derived from filename (without .yml extension)
	URL            string          `yaml:"url"`
	Title          string          `yaml:"title"`
	Mode           string          `yaml:"mode"` // html, feed or auto
	Selectors      ConfigSelectors `yaml:"selectors"`
	UpdateInterval ConfigInterval  `yaml:"update_interval"`
	TtlMinutes     int             `yaml:"ttl_minutes"`
	Enabled        bool            `yaml:"enabled"`
}

type ConfigSelectors struct {
	ListContainer string `yaml:"list_container"`
	Item          string `yaml:"item"`
	Title         string `yaml:"title"`
	Link          string `yaml:"link"`
	Published     string `yaml:"published"`
	Summary       string `yaml:"summary"`
}

type ConfigInterval struct {
	Unit  string `yaml:"unit"` // hour, day, week
	Value int    `yaml:"value"`
}
