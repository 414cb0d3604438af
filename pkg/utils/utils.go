package utils

type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// SetDefaultNum sets p to d if p is zero.
func SetDefaultNum[T Number](p *T, d T) {
	if *p == 0 {
		*p = d
	}
}
