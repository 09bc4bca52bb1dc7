package settings

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	TickRateHz      int `yaml:"tick_rate_hz"`
	SaveDelayTicks  int `yaml:"save_delay_ticks"`
	// CheckEveryTicks controls how often active shop objects are checked and respawned.
	CheckEveryTicks int `yaml:"check_every_ticks"`
	BackupEvery     int `yaml:"backup_every_saves"`
	BackupKeep      int `yaml:"backup_keep"`

	EnableBookShops     bool `yaml:"enable_book_shops"`
	EnableAdminShops    bool `yaml:"enable_admin_shops"`
	EnableSignShops     bool `yaml:"enable_sign_shops"`
	EnableSignPostShops bool `yaml:"enable_sign_post_shops"`
	EnableCitizenShops  bool `yaml:"enable_citizen_shops"`

	NameRegex     string `yaml:"name_regex"`
	MaxNameLength int    `yaml:"max_name_length"`

	// MaxShopsPerPlayer limits player shops per owner; 0 means unlimited.
	MaxShopsPerPlayer int `yaml:"max_shops_per_player"`

	Messages Messages `yaml:"messages"`

	nameRe *regexp.Regexp
}

type Messages struct {
	NoPermission           string `yaml:"no_permission"`
	ShopTypeDisabled       string `yaml:"shop_type_disabled"`
	ShopObjectTypeDisabled string `yaml:"shop_object_type_disabled"`
	ShopCreateFail         string `yaml:"shop_create_fail"`
	ShopCreationFailed     string `yaml:"shop_creation_failed"`
	SelectedShopType       string `yaml:"selected_shop_type"`
	ShopkeeperCreated      string `yaml:"shopkeeper_created"`
	NameInvalid            string `yaml:"name_invalid"`
	TooManyShops           string `yaml:"too_many_shops"`

	ShopTypeBook       string `yaml:"shop_type_book"`
	ShopTypeDescBook   string `yaml:"shop_type_desc_book"`
	ShopSetupDescBook  string `yaml:"shop_setup_desc_book"`
	ShopTypeAdmin      string `yaml:"shop_type_admin"`
	ShopTypeDescAdmin  string `yaml:"shop_type_desc_admin"`
	ShopSetupDescAdmin string `yaml:"shop_setup_desc_admin"`

	ShopObjectTypeSign    string `yaml:"shop_object_type_sign"`
	ShopObjectTypeCitizen string `yaml:"shop_object_type_citizen"`
}

// MaxNameLengthLimit is the hard upper bound for shopkeeper names.
const MaxNameLengthLimit = 128

func Defaults() Settings {
	return Settings{
		TickRateHz:      20,
		SaveDelayTicks:  600,
		CheckEveryTicks: 200,
		BackupEvery:     20,
		BackupKeep:      5,

		EnableBookShops:     true,
		EnableAdminShops:    true,
		EnableSignShops:     true,
		EnableSignPostShops: true,
		EnableCitizenShops:  true,

		NameRegex:     `[A-Za-z0-9 ]{3,32}`,
		MaxNameLength: MaxNameLengthLimit,

		Messages: Messages{
			NoPermission:           "&cYou don't have the permission to do that.",
			ShopTypeDisabled:       "&7The shop type '&e{type}&7' is disabled.",
			ShopObjectTypeDisabled: "&7The shop object type '&e{type}&7' is disabled.",
			ShopCreateFail:         "&cYou cannot create a shopkeeper there.",
			ShopCreationFailed:     "&cShopkeeper creation failed: {reason}",
			SelectedShopType:       "&aSelected shop type: &e{type} &7({description})",
			ShopkeeperCreated:      "&aShopkeeper created: &6{type} &7({description})\n&e{setupDesc}",
			NameInvalid:            "&cThat name is not valid!",
			TooManyShops:           "&cYou already have too many shops.",

			ShopTypeBook:       "Book",
			ShopTypeDescBook:   "sells books",
			ShopSetupDescBook:  "Add written books and blank books to the chest.",
			ShopTypeAdmin:      "Admin shop",
			ShopTypeDescAdmin:  "has unlimited stock",
			ShopSetupDescAdmin: "Right-click the shop while sneaking to modify trades.",

			ShopObjectTypeSign:    "sign",
			ShopObjectTypeCitizen: "npc",
		},
	}
}

// Load reads path on top of Defaults. An empty path yields the defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	if strings.TrimSpace(path) == "" {
		s.Normalize()
		return s, s.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	return s, nil
}

func (s *Settings) Normalize() {
	if s == nil {
		return
	}
	if s.TickRateHz <= 0 {
		s.TickRateHz = 20
	}
	if s.SaveDelayTicks <= 0 {
		s.SaveDelayTicks = 1
	}
	if s.CheckEveryTicks < 0 {
		s.CheckEveryTicks = 0
	}
	if s.BackupEvery < 0 {
		s.BackupEvery = 0
	}
	if s.BackupKeep <= 0 {
		s.BackupKeep = 1
	}
	if s.MaxShopsPerPlayer < 0 {
		s.MaxShopsPerPlayer = 0
	}
	if s.MaxNameLength <= 0 || s.MaxNameLength > MaxNameLengthLimit {
		s.MaxNameLength = MaxNameLengthLimit
	}
	s.NameRegex = strings.TrimSpace(s.NameRegex)
}

func (s *Settings) Validate() error {
	if s == nil {
		return errors.New("nil settings")
	}
	if s.NameRegex == "" {
		s.nameRe = nil
		return nil
	}
	re, err := regexp.Compile(`^(?:` + s.NameRegex + `)$`)
	if err != nil {
		return fmt.Errorf("name_regex: %w", err)
	}
	s.nameRe = re
	return nil
}

// NameMatches reports whether name satisfies the configured name pattern.
// Settings that were never validated accept every name.
func (s *Settings) NameMatches(name string) bool {
	if s.nameRe == nil {
		return true
	}
	return s.nameRe.MatchString(name)
}
