package storage

import "context"

// BelongsTo описывает связь «многие к одному»: у T есть ссылка на строку P.
func BelongsTo[T, P any](target *Schema[P], ref func(*T) string, set func(*T, *P)) Relation[T] {
	return Relation[T]{
		Load: func(ctx context.Context, uow *UnitOfWork, items []T) error {
			ids := uniqueIDs(items, ref)
			parents, err := GetRepository(uow, target).GetAllBy(ctx, In(target.def.Key, ids))
			if err != nil {
				return err
			}
			byID := make(map[string]P, len(parents))
			for i := range parents {
				byID[target.def.ID(&parents[i])] = parents[i]
			}
			for i := range items {
				if p, ok := byID[ref(&items[i])]; ok {
					set(&items[i], &p)
				} else {
					set(&items[i], nil)
				}
			}
			return nil
		},
		Reset: func(rec *T) { set(rec, nil) },
	}
}

// HasMany описывает связь «один ко многим»: строки C ссылаются на T через column.
func HasMany[T, C any](target *Schema[C], column string, id func(*T) string, parent func(*C) string, set func(*T, []C)) Relation[T] {
	return Relation[T]{
		Load: func(ctx context.Context, uow *UnitOfWork, items []T) error {
			ids := uniqueIDs(items, id)
			children, err := GetRepository(uow, target).GetAllBy(ctx, In(column, ids))
			if err != nil {
				return err
			}
			grouped := make(map[string][]C, len(items))
			for _, child := range children {
				key := parent(&child)
				grouped[key] = append(grouped[key], child)
			}
			for i := range items {
				group := grouped[id(&items[i])]
				if group == nil {
					group = []C{}
				}
				set(&items[i], group)
			}
			return nil
		},
		Reset: func(rec *T) { set(rec, nil) },
	}
}

func uniqueIDs[T any](items []T, get func(*T) string) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for i := range items {
		id := get(&items[i])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
