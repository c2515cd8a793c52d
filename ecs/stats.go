package ecs

// StorageStats is a snapshot of how entities are laid out in tables.
type StorageStats struct {
	TableCount       int
	ActiveTableCount int
	FamilyCount      int
	TotalEntityCount int
	SingletonCount   int
	TableBreakdown   []TableStats
	SingletonTypes   []string
}

// TableStats describes one table.
type TableStats struct {
	Family         Family
	ComponentTypes []string
	EntityCount    int
	Capacity       int
	Systems        int
}

// CollectStats walks every entity table. Tables holding the world's
// singletons are only reported through SingletonCount and SingletonTypes.
// It must not be called while systems run.
func (w *World) CollectStats() *StorageStats {
	w.gate.RLock()
	defer w.gate.RUnlock()

	stats := &StorageStats{
		FamilyCount: w.families.Len(),
	}

	if singleton, _ := w.ids.location(w.singleton); singleton.table != nil {
		for _, c := range singleton.table.columns {
			stats.SingletonTypes = append(stats.SingletonTypes, c.info.Name)
		}
		stats.SingletonCount = len(stats.SingletonTypes)
	}

	for _, t := range w.store.tables {
		if w.families.Has(t.family, w.singletonTag, false) {
			continue
		}
		stats.TableCount++
		if t.Active() {
			stats.ActiveTableCount++
		}
		stats.TotalEntityCount += t.Count()
		stats.TableBreakdown = append(stats.TableBreakdown, TableStats{
			Family:         t.family,
			ComponentTypes: w.componentNames(t.ids),
			EntityCount:    t.Count(),
			Capacity:       t.Capacity(),
			Systems:        len(t.systems),
		})
	}
	return stats
}

func (w *World) componentNames(ids []EntityId) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if info := w.components.get(id); info != nil {
			names = append(names, info.Name)
		} else {
			names = append(names, id.String())
		}
	}
	return names
}
