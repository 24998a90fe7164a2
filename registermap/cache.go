package registermap

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// cachedDescriptor is the gorm model used to mirror a Descriptor to the local SQLite cache.
type cachedDescriptor struct {
	Name      string `gorm:"primaryKey"`
	Address   uint16
	WordCount uint16
	Signed    bool
	Scale     float64
	Unit      string
	Access    string
}

func toCached(d Descriptor) cachedDescriptor {
	return cachedDescriptor{
		Name:      d.Name,
		Address:   d.Address,
		WordCount: d.WordCount,
		Signed:    d.Signed,
		Scale:     d.Scale,
		Unit:      d.Unit,
		Access:    string(d.Access),
	}
}

func (c cachedDescriptor) toDescriptor() Descriptor {
	return Descriptor{
		Name:      c.Name,
		Address:   c.Address,
		WordCount: c.WordCount,
		Signed:    c.Signed,
		Scale:     c.Scale,
		Unit:      c.Unit,
		Access:    Access(c.Access),
	}
}

// Cache mirrors the bootstrap-supplied register map to a local, pure-Go SQLite file. The register map is
// taken from bootstrap whenever bootstrap supplies one that parses; the cache is read only when
// bootstrap's register map fails to parse. It is a local mirror, not a store of record.
type Cache struct {
	db *gorm.DB
}

// NewCache opens (creating if necessary) the SQLite file at path and migrates the cache schema.
func NewCache(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open register map cache: %w", err)
	}

	err = db.AutoMigrate(&cachedDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("migrate register map cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Replace overwrites the cached descriptor set with the given descriptors, as a single transaction.
func (c *Cache) Replace(descriptors []Descriptor) error {
	cached := make([]cachedDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		cached = append(cached, toCached(d))
	}

	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&cachedDescriptor{}).Error; err != nil {
			return fmt.Errorf("clear register map cache: %w", err)
		}
		if len(cached) == 0 {
			return nil
		}
		if err := tx.Create(&cached).Error; err != nil {
			return fmt.Errorf("write register map cache: %w", err)
		}
		return nil
	})
}

// Load returns the last cached descriptor set. main uses it as the fallback register map when the one
// bootstrap returned fails to parse.
func (c *Cache) Load() ([]Descriptor, error) {
	var cached []cachedDescriptor
	if err := c.db.Find(&cached).Error; err != nil {
		return nil, fmt.Errorf("read register map cache: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(cached))
	for _, cd := range cached {
		descriptors = append(descriptors, cd.toDescriptor())
	}
	return descriptors, nil
}
