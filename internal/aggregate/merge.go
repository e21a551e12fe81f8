package aggregate

import (
	"sort"

	"stats-service/internal/models"
)

// MergeWeekBuckets folds any number of per-child bucket sequences into one.
// Buckets sharing a week key have totals and daily counts summed element-wise;
// unique keys are inserted as-is. The merge is commutative and associative, so
// the result is identical for any fan-out completion order. The returned
// sequence is sorted ascending by week.
func MergeWeekBuckets(groups ...[]models.WeekBucket) []models.WeekBucket {
	byWeek := make(map[int64]models.WeekBucket)

	for _, group := range groups {
		for _, bucket := range group {
			merged, ok := byWeek[bucket.Week]
			if !ok {
				byWeek[bucket.Week] = bucket
				continue
			}
			merged.Total += bucket.Total
			for i := range merged.Days {
				merged.Days[i] += bucket.Days[i]
			}
			byWeek[bucket.Week] = merged
		}
	}

	if len(byWeek) == 0 {
		return nil
	}

	result := make([]models.WeekBucket, 0, len(byWeek))
	for _, bucket := range byWeek {
		result = append(result, bucket)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Week < result[j].Week
	})
	return result
}

// TruncateWeeks keeps only the most recent limit buckets of an ascending
// sequence. A non-positive limit disables truncation.
func TruncateWeeks(buckets []models.WeekBucket, limit int) []models.WeekBucket {
	if limit <= 0 || len(buckets) <= limit {
		return buckets
	}
	return buckets[len(buckets)-limit:]
}

// MergeLanguages sums byte counts per language across children.
func MergeLanguages(groups ...models.LanguageBytes) models.LanguageBytes {
	merged := make(models.LanguageBytes)
	for _, group := range groups {
		for name, count := range group {
			merged[name] += count
		}
	}
	return merged
}

// RankLanguages orders a histogram descending by byte count for presentation.
// Equal counts fall back to name order so the output is deterministic.
func RankLanguages(languages models.LanguageBytes) []models.LanguageStat {
	if len(languages) == 0 {
		return nil
	}

	result := make([]models.LanguageStat, 0, len(languages))
	for name, count := range languages {
		result = append(result, models.LanguageStat{Name: name, Bytes: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Bytes != result[j].Bytes {
			return result[i].Bytes > result[j].Bytes
		}
		return result[i].Name < result[j].Name
	})
	return result
}
