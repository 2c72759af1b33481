package tkdb

import "errors"

// ErrorTranslator is a NewMapper option that rewrites every error a Mapper operation returns
type ErrorTranslator interface {
	Translate(err error) error
}

// ErrorTranslatorFunc adapts a plain func to an ErrorTranslator
type ErrorTranslatorFunc func(err error) error

func (fn ErrorTranslatorFunc) Translate(err error) error {
	return fn(err)
}

// UniqueViolation returns a translator that replaces unique/primary key violations with target,
// joined with the original *StorageError so the statement stays available through errors.As
func UniqueViolation(target error) ErrorTranslator {
	return ErrorTranslatorFunc(func(err error) error {
		if IsUniqueViolation(err) {
			return errors.Join(target, err)
		}
		return err
	})
}

// translateError passes err through translator (nil translators and nil errors pass through)
func translateError(err error, translator ErrorTranslator) error {
	if err == nil || translator == nil {
		return err
	}
	return translator.Translate(err)
}
