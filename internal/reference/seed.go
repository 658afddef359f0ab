package reference

type kindSeed struct {
	kind    Kind
	entries []Entry
}

func boolPtr(value bool) *bool {
	return &value
}

func defaultSeeds() []kindSeed {
	return []kindSeed{
		{kind: KindAccess, entries: []Entry{
			{ID: "1", Name: "Biasa/Terbuka"},
			{ID: "2", Name: "Terbatas"},
			{ID: "3", Name: "Rahasia"},
			{ID: "4", Name: "Sangat Rahasia"},
		}},
		{kind: KindStorageLocation, entries: []Entry{
			{ID: "1", Name: "Unit Pengolah"},
			{ID: "2", Name: "Unit Kearsipan"},
			{ID: "3", Name: "Lembaga Kearsipan Daerah"},
		}},
		{kind: KindRetentionPeriod, entries: []Entry{
			{ID: "A1", Name: "1 Tahun", Active: boolPtr(true)},
			{ID: "A2", Name: "2 Tahun", Active: boolPtr(true)},
			{ID: "A5", Name: "5 Tahun", Active: boolPtr(true)},
			{ID: "I1", Name: "1 Tahun", Active: boolPtr(false)},
			{ID: "I5", Name: "5 Tahun", Active: boolPtr(false)},
			{ID: "I10", Name: "10 Tahun", Active: boolPtr(false)},
		}},
		{kind: KindJRADescription, entries: []Entry{
			{ID: "1", Name: "Musnah"},
			{ID: "2", Name: "Permanen"},
			{ID: "3", Name: "Dinilai Kembali"},
		}},
		{kind: KindLevel, entries: []Entry{
			{ID: "1", Name: "Biasa"},
			{ID: "2", Name: "Segera"},
			{ID: "3", Name: "Sangat Segera"},
		}},
	}
}
