package store

import "database/sql"

// AllContacts returns every contact ordered by name.
func (db *DB) AllContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT id, phoneNumber, name, notifyName, imgUrl, isBusiness, verifiedName
		FROM Contacts ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		var phone, name, notify, img, verified sql.NullString
		if err := rows.Scan(&c.ID, &phone, &name, &notify, &img, &c.IsBusiness, &verified); err != nil {
			return nil, err
		}
		c.PhoneNumber = strPtr(phone)
		c.Name = strPtr(name)
		c.NotifyName = strPtr(notify)
		c.ImgURL = strPtr(img)
		c.VerifiedName = strPtr(verified)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// GetContact returns a contact by id, or nil if not found.
func (db *DB) GetContact(id string) (*Contact, error) {
	var c Contact
	var phone, name, notify, img, verified sql.NullString
	err := db.QueryRow(`
		SELECT id, phoneNumber, name, notifyName, imgUrl, isBusiness, verifiedName
		FROM Contacts WHERE id = ?`, id).
		Scan(&c.ID, &phone, &name, &notify, &img, &c.IsBusiness, &verified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.PhoneNumber = strPtr(phone)
	c.Name = strPtr(name)
	c.NotifyName = strPtr(notify)
	c.ImgURL = strPtr(img)
	c.VerifiedName = strPtr(verified)
	return &c, nil
}

// ContactCount returns the total number of contacts.
func (db *DB) ContactCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM Contacts`).Scan(&count)
	return count, err
}
