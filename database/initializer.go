package database

import (
	"fmt"
	"log"
	"strings"
)

func (s *PostgreSQLStore) Initialize() error {
	// Init all enums
	log.Println("Initializing PostgresSQL Database.", "Initializing Enums")
	if err := s.InitEnums(); err != nil {
		return err
	}
	// Init all tables
	log.Println("Initializing PostgresSQL Database.", "Initializing Tables")
	if err := s.InitTables(); err != nil {
		return err
	}
	// Print relationships
	log.Println("Initializing PostgresSQL Database.", "Printing Relationships")
	s.PrintAllRelationships()
	return nil
}

func (s *PostgreSQLStore) InitEnums() error {
	// Init all the enums
	query := `
		DO $$
		BEGIN
           	IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'invoice_status') THEN
				CREATE TYPE invoice_status AS ENUM ('created', 'paid', 'failed', 'expired');
           	END IF;
		END $$;

		DO $$
		BEGIN
           	IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'term_status') THEN
				CREATE TYPE term_status AS ENUM ('past', 'current', 'future');
           	END IF;
		END $$;
	`
	_, err := s.db.Exec(query)

	return err
}

func (s *PostgreSQLStore) InitTables() error {
	//
	// Init all the tables
	//

	// schools table
	schools_table := `
	CREATE TABLE IF NOT EXISTS schools (
        id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
        name VARCHAR(255) UNIQUE NOT NULL,
        code VARCHAR(20) UNIQUE NOT NULL,
        address TEXT,
        phone VARCHAR(20),
        is_active BOOLEAN DEFAULT TRUE,
        created_at TIMESTAMP,
        updated_at TIMESTAMP,
        deleted_at TIMESTAMP
	);
	`

	// users table
	users_table := `
	CREATE TABLE IF NOT EXISTS users (
        id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
        school_id BIGINT REFERENCES schools(id) ON DELETE CASCADE,
        idn BIGINT NOT NULL,
        username VARCHAR(64) UNIQUE NOT NULL,
        first_name VARCHAR(255) NOT NULL,
        last_name VARCHAR(255) NOT NULL,
        email VARCHAR(512),
        phone VARCHAR(20),
        address TEXT,
        birth_date DATE,
        photo_url VARCHAR(512),
        is_admin BOOLEAN DEFAULT FALSE,
        is_instructor BOOLEAN DEFAULT FALSE,
        is_student BOOLEAN DEFAULT TRUE,
        credits BIGINT DEFAULT 0,
        price BIGINT,
        password_hash TEXT NOT NULL,
        token_version INT DEFAULT 0,
        created_at TIMESTAMP,
        updated_at TIMESTAMP,
        deleted_at TIMESTAMP,
        UNIQUE(school_id, idn)
	);
	`

	// terms table
	terms_table := `
	CREATE TABLE IF NOT EXISTS terms (
        id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
        school_id BIGINT REFERENCES schools(id) ON DELETE CASCADE,
        name VARCHAR(255) NOT NULL,
        start_date DATE NOT NULL,
        end_date DATE NOT NULL,
        created_at TIMESTAMP,
        updated_at TIMESTAMP,
        deleted_at TIMESTAMP
	);
	`

	// courses table
	courses_table := `
	CREATE TABLE IF NOT EXISTS courses (
        id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
        school_id BIGINT REFERENCES schools(id) ON DELETE CASCADE,
        term_id BIGINT REFERENCES terms(id) ON DELETE CASCADE,
        name VARCHAR(255) NOT NULL,
        code VARCHAR(20) UNIQUE NOT NULL,
        description TEXT,
        days JSONB,
        price BIGINT DEFAULT 0,
        capacity INT DEFAULT 0,
        created_at TIMESTAMP,
        updated_at TIMESTAMP,
        deleted_at TIMESTAMP
	);
	`

	// registrations table
	registrations_table := `
	CREATE TABLE IF NOT EXISTS registrations (
		user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
		course_id BIGINT REFERENCES courses(id) ON DELETE CASCADE,
		enrolled_at TIMESTAMP,
		CONSTRAINT registrations_pk PRIMARY KEY (user_id, course_id)
    );
	`

	// attendance records table
	attendance_table := `
	CREATE TABLE IF NOT EXISTS attendance_records (
        id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
        user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
        occurred_at TIMESTAMP NOT NULL,
        marked_by BIGINT,
        created_at TIMESTAMP
    );
	`

	// grade records table
	grades_table := `
	CREATE TABLE IF NOT EXISTS grade_records (
        id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
        user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
        assignment VARCHAR(255) NOT NULL,
        score DOUBLE PRECISION,
        graded_by BIGINT,
        created_at TIMESTAMP,
        updated_at TIMESTAMP,
        UNIQUE(user_id, assignment)
    );
	`

	// grade weights table
	weights_table := `
	CREATE TABLE IF NOT EXISTS grade_weights (
        id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
        course_id BIGINT REFERENCES courses(id) ON DELETE CASCADE,
        assignment VARCHAR(255) NOT NULL,
        checkpoint BOOLEAN DEFAULT FALSE,
        created_at TIMESTAMP,
        updated_at TIMESTAMP,
        UNIQUE(course_id, assignment)
    );
	`

	// invoices table
	invoices_table := `
	CREATE TABLE IF NOT EXISTS invoices (
		id BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
		school_id BIGINT REFERENCES schools(id) ON DELETE CASCADE,
		amount BIGINT NOT NULL,
		currency VARCHAR(10) DEFAULT 'INR',
		status VARCHAR(20) DEFAULT 'created',
		receipt VARCHAR(64) UNIQUE,
		provider_order_id VARCHAR(100) UNIQUE,
		provider_payment_id VARCHAR(100),
		paid_at TIMESTAMP,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		deleted_at TIMESTAMP
	);
	`

	all_tables := strings.Join([]string{schools_table, users_table, terms_table, courses_table, registrations_table, attendance_table, grades_table, weights_table, invoices_table}, "")

	_, err := s.db.Exec(all_tables)
	return err
}

// Reset drops all domain tables so the schema can be rebuilt from scratch
func (s *PostgreSQLStore) Reset() error {
	log.Println("Dropping all PostgresSQL Database tables.")
	query := `
	DROP TABLE IF EXISTS invoices CASCADE;
	DROP TABLE IF EXISTS grade_weights CASCADE;
	DROP TABLE IF EXISTS grade_records CASCADE;
	DROP TABLE IF EXISTS attendance_records CASCADE;
	DROP TABLE IF EXISTS registrations CASCADE;
	DROP TABLE IF EXISTS courses CASCADE;
	DROP TABLE IF EXISTS terms CASCADE;
	DROP TABLE IF EXISTS users CASCADE;
	DROP TABLE IF EXISTS schools CASCADE;
	DROP TABLE IF EXISTS user_notifications CASCADE;
	DROP TABLE IF EXISTS password_reset_tokens CASCADE;
	DROP TABLE IF EXISTS jwt_token_blacklist CASCADE;
	DROP TABLE IF EXISTS admin_audit_logs CASCADE;
	DROP TABLE IF EXISTS app_settings CASCADE;
	DROP TABLE IF EXISTS cron_job_logs CASCADE;
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *PostgreSQLStore) PrintAllRelationships() {
	relationships := map[string]string{
		"users":              "school_id	-> schools(id)",
		"terms":              "school_id	-> schools(id)",
		"courses":            "school_id	-> schools(id), term_id -> terms(id)",
		"registrations":      "user_id	-> users(id), course_id -> courses(id)",
		"attendance_records": "user_id	-> users(id)",
		"grade_records":      "user_id	-> users(id)",
		"grade_weights":      "course_id	-> courses(id)",
		"invoices":           "user_id	-> users(id), school_id -> schools(id)",
	}

	// Print the relationships
	for table, relationship := range relationships {
		fmt.Printf("Relationships for %s table:\n", table)
		fmt.Println(relationship)
		fmt.Println()
	}

}
